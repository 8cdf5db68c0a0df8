package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/reelmark/bookmarks-api/internal/metrics"
	"github.com/reelmark/bookmarks-api/internal/models"
)

const (
	attrUserID  = "user_id"
	attrMovieID = "movie_id"
	attrOwnerID = "owner_id"

	// Email uniqueness markers share the users table under this key prefix
	emailMarkerPrefix = "email#"

	conditionNotExistsUser  = "attribute_not_exists(user_id)"
	conditionExistsUser     = "attribute_exists(user_id)"
	conditionNotExistsMovie = "attribute_not_exists(movie_id)"
	conditionExistsMovie    = "attribute_exists(movie_id)"
	conditionOwnedBy        = "owner_id = :owner_id"

	cancelReasonConditionFailed = "ConditionalCheckFailed"

	// BatchWriteItem accepts at most 25 requests
	maxBatchWriteItems   = 25
	maxBatchWriteRetries = 5

	defaultBatchRetryBase = 50 * time.Millisecond
	maxBatchRetryDelay    = 2 * time.Second
)

// DynamoDBAPI is the subset of the DynamoDB client used by DynamoStore
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// emailMarker reserves an email for one user
type emailMarker struct {
	Key     string `dynamodbav:"user_id"`
	OwnerID string `dynamodbav:"owner_id"`
}

// DynamoStore implements UserRepository and BookmarkRepository on DynamoDB.
//
// Users table: PK user_id. Holds user items and email markers.
// Bookmarks table: PK user_id, SK movie_id.
type DynamoStore struct {
	client         DynamoDBAPI
	usersTable     string
	bookmarksTable string
	logger         *logrus.Logger
	tracer         trace.Tracer
	now            func() time.Time

	// batchRetryBase is the first backoff before resubmitting unprocessed items
	batchRetryBase time.Duration
}

// NewDynamoStore creates a DynamoDB-backed store
func NewDynamoStore(client DynamoDBAPI, usersTable, bookmarksTable string, logger *logrus.Logger) *DynamoStore {
	return &DynamoStore{
		client:         client,
		usersTable:     usersTable,
		bookmarksTable: bookmarksTable,
		logger:         logger,
		tracer:         otel.Tracer("bookmarks-api/store"),
		now:            func() time.Time { return time.Now().UTC() },
		batchRetryBase: defaultBatchRetryBase,
	}
}

// observe opens a span and returns a completion func recording metrics
func (s *DynamoStore) observe(ctx context.Context, operation, table string) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "dynamodb."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "dynamodb"),
			attribute.String("db.operation", operation),
			attribute.String("aws.dynamodb.table_names", table),
		),
	)
	start := time.Now()

	return ctx, func(err error) {
		status := "success"
		switch {
		case err == nil:
		case isDomainError(err):
			status = "rejected"
		default:
			status = "failure"
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		}
		span.End()
		metrics.RecordStoreOperation(operation, status, time.Since(start))
	}
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrDuplicateEmail) ||
		errors.Is(err, ErrInvalidUser) ||
		errors.Is(err, ErrBookmarkNotFound) ||
		errors.Is(err, ErrBookmarkExists)
}

// Ping checks that both tables are reachable
func (s *DynamoStore) Ping(ctx context.Context) error {
	for _, table := range []string{s.usersTable, s.bookmarksTable} {
		if _, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(table),
		}); err != nil {
			return fmt.Errorf("describe table %s failed: %w", table, err)
		}
	}
	return nil
}

// EnsureTables creates missing tables with on-demand billing and waits for
// them to become active. Intended for DynamoDB Local and test stacks.
func (s *DynamoStore) EnsureTables(ctx context.Context, timeout time.Duration) error {
	tables := []*dynamodb.CreateTableInput{
		{
			TableName:   aws.String(s.usersTable),
			BillingMode: types.BillingModePayPerRequest,
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(attrUserID), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(attrUserID), KeyType: types.KeyTypeHash},
			},
		},
		{
			TableName:   aws.String(s.bookmarksTable),
			BillingMode: types.BillingModePayPerRequest,
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(attrUserID), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String(attrMovieID), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(attrUserID), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String(attrMovieID), KeyType: types.KeyTypeRange},
			},
		},
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	for _, table := range tables {
		_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: table.TableName})
		if err == nil {
			continue
		}
		var notFound *types.ResourceNotFoundException
		if !errors.As(err, &notFound) {
			return fmt.Errorf("describe table %s failed: %w", aws.ToString(table.TableName), err)
		}

		if _, err := s.client.CreateTable(ctx, table); err != nil {
			return fmt.Errorf("create table %s failed: %w", aws.ToString(table.TableName), err)
		}
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: table.TableName}, timeout); err != nil {
			return fmt.Errorf("wait for table %s failed: %w", aws.ToString(table.TableName), err)
		}

		s.logger.WithField("table_name", aws.ToString(table.TableName)).Info("DynamoDB table created")
	}
	return nil
}

// Users

func userKey(userID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrUserID: &types.AttributeValueMemberS{Value: userID},
	}
}

func emailKey(email string) map[string]types.AttributeValue {
	return userKey(emailMarkerPrefix + email)
}

func bookmarkKey(userID, movieID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrUserID:  &types.AttributeValueMemberS{Value: userID},
		attrMovieID: &types.AttributeValueMemberS{Value: movieID},
	}
}

func (s *DynamoStore) Create(ctx context.Context, user *models.User) (err error) {
	ctx, done := s.observe(ctx, "CreateUser", s.usersTable)
	defer func() { done(err) }()

	item, err := attributevalue.MarshalMap(user)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	marker, err := attributevalue.MarshalMap(emailMarker{
		Key:     emailMarkerPrefix + user.Email,
		OwnerID: user.UserID,
	})
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(s.usersTable),
				Item:                item,
				ConditionExpression: aws.String(conditionNotExistsUser),
			}},
			{Put: &types.Put{
				TableName:           aws.String(s.usersTable),
				Item:                marker,
				ConditionExpression: aws.String(conditionNotExistsUser),
			}},
		},
	})
	if err != nil {
		reasons := cancellationReasons(err)
		switch {
		case conditionFailedAt(reasons, 1):
			return ErrDuplicateEmail
		case conditionFailedAt(reasons, 0):
			return fmt.Errorf("%w: user id collision", ErrInvalidUser)
		}
		return fmt.Errorf("transact create user failed: %w", err)
	}

	return nil
}

func (s *DynamoStore) GetByID(ctx context.Context, userID string) (user *models.User, err error) {
	if userID == "" || strings.HasPrefix(userID, emailMarkerPrefix) {
		return nil, nil
	}

	ctx, done := s.observe(ctx, "GetUser", s.usersTable)
	defer func() { done(err) }()

	return s.getUser(ctx, userID)
}

func (s *DynamoStore) getUser(ctx context.Context, userID string) (*models.User, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.usersTable),
		Key:            userKey(userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item failed: %w", err)
	}
	if len(result.Item) == 0 {
		return nil, nil
	}

	var user models.User
	if err := attributevalue.UnmarshalMap(result.Item, &user); err != nil {
		return nil, fmt.Errorf("unmarshal failed: %w", err)
	}
	return &user, nil
}

func (s *DynamoStore) GetByEmail(ctx context.Context, email string) (user *models.User, err error) {
	if email == "" {
		return nil, nil
	}

	ctx, done := s.observe(ctx, "GetUserByEmail", s.usersTable)
	defer func() { done(err) }()

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.usersTable),
		Key:            emailKey(email),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get email marker failed: %w", err)
	}
	if len(result.Item) == 0 {
		return nil, nil
	}

	var marker emailMarker
	if err := attributevalue.UnmarshalMap(result.Item, &marker); err != nil {
		return nil, fmt.Errorf("unmarshal failed: %w", err)
	}

	user, err = s.getUser(ctx, marker.OwnerID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Email != email {
		s.logger.WithFields(logrus.Fields{
			"owner_id": marker.OwnerID,
		}).Warn("Dangling email marker")
		return nil, nil
	}
	return user, nil
}

// buildUserUpdate renders the SET clause for update
func buildUserUpdate(update UserUpdate, now time.Time) (string, map[string]string, map[string]types.AttributeValue, error) {
	updatedAt, err := attributevalue.Marshal(now)
	if err != nil {
		return "", nil, nil, fmt.Errorf("marshal failed: %w", err)
	}

	sets := []string{"updated_at = :updated_at"}
	names := map[string]string{}
	values := map[string]types.AttributeValue{":updated_at": updatedAt}

	if update.Name != nil {
		// "name" is a reserved word
		sets = append(sets, "#name = :name")
		names["#name"] = "name"
		values[":name"] = &types.AttributeValueMemberS{Value: *update.Name}
	}
	if update.Email != nil {
		sets = append(sets, "email = :email")
		values[":email"] = &types.AttributeValueMemberS{Value: *update.Email}
	}
	if update.PasswordHash != nil {
		sets = append(sets, "password_hash = :password_hash")
		values[":password_hash"] = &types.AttributeValueMemberS{Value: *update.PasswordHash}
	}

	if len(names) == 0 {
		names = nil
	}
	return "SET " + strings.Join(sets, ", "), names, values, nil
}

func (s *DynamoStore) Update(ctx context.Context, userID string, update UserUpdate) (user *models.User, err error) {
	ctx, done := s.observe(ctx, "UpdateUser", s.usersTable)
	defer func() { done(err) }()

	current, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current == nil || strings.HasPrefix(userID, emailMarkerPrefix) {
		return nil, ErrUserNotFound
	}

	now := s.now()
	expr, names, values, err := buildUserUpdate(update, now)
	if err != nil {
		return nil, err
	}

	if update.Email == nil || *update.Email == current.Email {
		result, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String(s.usersTable),
			Key:                       userKey(userID),
			UpdateExpression:          aws.String(expr),
			ConditionExpression:       aws.String(conditionExistsUser),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
			ReturnValues:              types.ReturnValueAllNew,
		})
		if err != nil {
			var ccf *types.ConditionalCheckFailedException
			if errors.As(err, &ccf) {
				return nil, ErrUserNotFound
			}
			return nil, fmt.Errorf("update item failed: %w", err)
		}

		var updated models.User
		if err := attributevalue.UnmarshalMap(result.Attributes, &updated); err != nil {
			return nil, fmt.Errorf("unmarshal failed: %w", err)
		}
		return &updated, nil
	}

	// Email change: move the uniqueness marker in the same transaction
	newMarker, err := attributevalue.MarshalMap(emailMarker{
		Key:     emailMarkerPrefix + *update.Email,
		OwnerID: userID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal failed: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: &types.Update{
				TableName:                 aws.String(s.usersTable),
				Key:                       userKey(userID),
				UpdateExpression:          aws.String(expr),
				ConditionExpression:       aws.String(conditionExistsUser),
				ExpressionAttributeNames:  names,
				ExpressionAttributeValues: values,
			}},
			{Delete: &types.Delete{
				TableName:           aws.String(s.usersTable),
				Key:                 emailKey(current.Email),
				ConditionExpression: aws.String(conditionOwnedBy),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":owner_id": &types.AttributeValueMemberS{Value: userID},
				},
			}},
			{Put: &types.Put{
				TableName:           aws.String(s.usersTable),
				Item:                newMarker,
				ConditionExpression: aws.String(conditionNotExistsUser),
			}},
		},
	})
	if err != nil {
		reasons := cancellationReasons(err)
		switch {
		case conditionFailedAt(reasons, 0):
			return nil, ErrUserNotFound
		case conditionFailedAt(reasons, 2):
			return nil, ErrDuplicateEmail
		case conditionFailedAt(reasons, 1):
			return nil, fmt.Errorf("email marker for user %s is out of sync: %w", userID, err)
		}
		return nil, fmt.Errorf("transact update user failed: %w", err)
	}

	updated := *current
	updated.Email = *update.Email
	if update.Name != nil {
		updated.Name = *update.Name
	}
	if update.PasswordHash != nil {
		updated.PasswordHash = *update.PasswordHash
	}
	updated.UpdatedAt = now
	return &updated, nil
}

func (s *DynamoStore) Delete(ctx context.Context, userID string) (deleted bool, err error) {
	ctx, done := s.observe(ctx, "DeleteUser", s.usersTable)
	defer func() { done(err) }()

	current, err := s.getUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if current == nil || strings.HasPrefix(userID, emailMarkerPrefix) {
		return false, nil
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Delete: &types.Delete{
				TableName:           aws.String(s.usersTable),
				Key:                 userKey(userID),
				ConditionExpression: aws.String(conditionExistsUser),
			}},
			{Delete: &types.Delete{
				TableName:           aws.String(s.usersTable),
				Key:                 emailKey(current.Email),
				ConditionExpression: aws.String(conditionOwnedBy),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":owner_id": &types.AttributeValueMemberS{Value: userID},
				},
			}},
		},
	})
	if err != nil {
		if conditionFailedAt(cancellationReasons(err), 0) {
			return false, nil
		}
		return false, fmt.Errorf("transact delete user failed: %w", err)
	}

	// The owner is gone, so no new bookmark can pass Add's condition check.
	// Leftover rows are unreachable; a failed cleanup is only logged.
	if err := s.deleteAllBookmarks(ctx, userID); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("Bookmark cleanup failed after account deletion")
	}
	return true, nil
}

// Bookmarks

func (s *DynamoStore) Add(ctx context.Context, b *models.Bookmark) (err error) {
	ctx, done := s.observe(ctx, "AddBookmark", s.bookmarksTable)
	defer func() { done(err) }()

	item, err := attributevalue.MarshalMap(b)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{ConditionCheck: &types.ConditionCheck{
				TableName:           aws.String(s.usersTable),
				Key:                 userKey(b.UserID),
				ConditionExpression: aws.String(conditionExistsUser),
			}},
			{Put: &types.Put{
				TableName:           aws.String(s.bookmarksTable),
				Item:                item,
				ConditionExpression: aws.String(conditionNotExistsMovie),
			}},
		},
	})
	if err != nil {
		reasons := cancellationReasons(err)
		switch {
		case conditionFailedAt(reasons, 0):
			return ErrUserNotFound
		case conditionFailedAt(reasons, 1):
			return ErrBookmarkExists
		}
		return fmt.Errorf("transact put bookmark failed: %w", err)
	}
	return nil
}

func (s *DynamoStore) Remove(ctx context.Context, userID, movieID string) (err error) {
	ctx, done := s.observe(ctx, "RemoveBookmark", s.bookmarksTable)
	defer func() { done(err) }()

	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.bookmarksTable),
		Key:                 bookmarkKey(userID, movieID),
		ConditionExpression: aws.String(conditionExistsMovie),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrBookmarkNotFound
		}
		return fmt.Errorf("delete item failed: %w", err)
	}
	return nil
}

func (s *DynamoStore) Exists(ctx context.Context, userID, movieID string) (exists bool, err error) {
	ctx, done := s.observe(ctx, "CheckBookmark", s.bookmarksTable)
	defer func() { done(err) }()

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(s.bookmarksTable),
		Key:                  bookmarkKey(userID, movieID),
		ConsistentRead:       aws.Bool(true),
		ProjectionExpression: aws.String(attrMovieID),
	})
	if err != nil {
		return false, fmt.Errorf("get item failed: %w", err)
	}
	return len(result.Item) > 0, nil
}

func (s *DynamoStore) List(ctx context.Context, userID string) (bookmarks []models.Bookmark, err error) {
	ctx, done := s.observe(ctx, "ListBookmarks", s.bookmarksTable)
	defer func() { done(err) }()

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.bookmarksTable),
		KeyConditionExpression: aws.String("user_id = :user_id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":user_id": &types.AttributeValueMemberS{Value: userID},
		},
		ConsistentRead: aws.Bool(true),
	})

	bookmarks = []models.Bookmark{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query failed: %w", err)
		}

		var items []models.Bookmark
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal failed: %w", err)
		}
		bookmarks = append(bookmarks, items...)
	}

	// Sort key is movie_id; recency order is applied here
	sort.SliceStable(bookmarks, func(i, j int) bool {
		return bookmarks[i].BookmarkedAt.After(bookmarks[j].BookmarkedAt)
	})
	return bookmarks, nil
}

func (s *DynamoStore) deleteAllBookmarks(ctx context.Context, userID string) error {
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.bookmarksTable),
		KeyConditionExpression: aws.String("user_id = :user_id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":user_id": &types.AttributeValueMemberS{Value: userID},
		},
		ProjectionExpression: aws.String("user_id, movie_id"),
		ConsistentRead:       aws.Bool(true),
	})

	var requests []types.WriteRequest
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		for _, item := range page.Items {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: item},
			})
		}
	}

	for start := 0; start < len(requests); start += maxBatchWriteItems {
		end := start + maxBatchWriteItems
		if end > len(requests) {
			end = len(requests)
		}
		if err := s.batchWrite(ctx, requests[start:end]); err != nil {
			return err
		}
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"deleted": len(requests),
	}).Debug("Cascaded bookmark deletion")
	return nil
}

// batchWrite resubmits unprocessed items, which BatchWriteItem may return
// under throttling even on success. Resubmissions back off exponentially.
func (s *DynamoStore) batchWrite(ctx context.Context, requests []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{s.bookmarksTable: requests}
	delay := s.batchRetryBase

	for attempt := 0; ; attempt++ {
		result, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: pending,
		})
		if err != nil {
			return fmt.Errorf("batch write failed: %w", err)
		}
		if len(result.UnprocessedItems) == 0 {
			return nil
		}
		pending = result.UnprocessedItems

		if attempt == maxBatchWriteRetries {
			break
		}

		s.logger.WithFields(logrus.Fields{
			"unprocessed": len(pending[s.bookmarksTable]),
			"attempt":     attempt + 1,
			"backoff":     delay.String(),
		}).Debug("Retrying unprocessed batch items")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("batch write interrupted: %w", ctx.Err())
		case <-timer.C:
		}

		delay *= 2
		if delay > maxBatchRetryDelay {
			delay = maxBatchRetryDelay
		}
	}

	return fmt.Errorf("batch write left %d unprocessed items", len(pending[s.bookmarksTable]))
}

// cancellationReasons returns the per-item codes of a cancelled transaction
func cancellationReasons(err error) []string {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return nil
	}
	codes := make([]string, len(tce.CancellationReasons))
	for i, reason := range tce.CancellationReasons {
		codes[i] = aws.ToString(reason.Code)
	}
	return codes
}

func conditionFailedAt(reasons []string, idx int) bool {
	return idx < len(reasons) && reasons[idx] == cancelReasonConditionFailed
}
