package middleware

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/reelmark/bookmarks-api/pkg/errors"
)

// ErrorHandler renders every error as the JSON error envelope. Cause text of
// internal errors is included only when exposeCause is set.
func ErrorHandler(exposeCause bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		appErr := toAppError(err)

		traceID := TraceID(c.UserContext())
		if traceID == "" {
			traceID = c.GetRespHeader(fiber.HeaderXRequestID)
		}

		return c.Status(appErr.HTTPStatus()).JSON(appErr.ToErrorResponse(traceID, exposeCause))
	}
}

func toAppError(err error) *apperrors.AppError {
	if appErr, ok := apperrors.As(err); ok {
		return appErr
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		var code apperrors.ErrorCode
		switch {
		case fiberErr.Code == http.StatusNotFound:
			code = apperrors.CodeNotFound
		case fiberErr.Code == http.StatusTooManyRequests:
			code = apperrors.CodeRateLimited
		case fiberErr.Code >= 500:
			code = apperrors.CodeInternalError
		default:
			code = apperrors.CodeBadRequest
		}
		return apperrors.NewAppError(code, fiberErr.Message, nil).WithStatus(fiberErr.Code)
	}

	return apperrors.Internal("Internal server error", err)
}
