package handlers

import (
	"github.com/paperdesk/paperdesk/services"
	"github.com/paperdesk/paperdesk/utils"
	"go.uber.org/zap"
	"net/http"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	switch {
	case services.IsNoEnginesConfigured(err):
		// Misconfiguration rather than outage, but from the caller's view
		// the service still cannot service the request
		if werr := utils.WriteServiceUnavailable(w, err.Error(), nil); werr != nil {
			logger.Error("failed to write service unavailable response", zap.Error(werr))
		}

	case services.IsExhausted(err):
		attempts := services.ExhaustedAttempts(err)
		details := map[string]interface{}{"attempts": attempts}
		if werr := utils.WriteServiceUnavailable(w, err.Error(), details); werr != nil {
			logger.Error("failed to write service unavailable response", zap.Error(werr))
		}

	case services.IsValidationError(err):
		if werr := utils.WriteBadRequest(w, err.Error(), services.GetErrorDetails(err)); werr != nil {
			logger.Error("failed to write bad request response", zap.Error(werr))
		}

	case services.IsUnauthorizedError(err):
		if werr := utils.WriteUnauthorized(w, err.Error()); werr != nil {
			logger.Error("failed to write unauthorized response", zap.Error(werr))
		}

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		if werr := utils.WriteInternalServerError(w, "An unexpected error occurred"); werr != nil {
			logger.Error("failed to write internal error response", zap.Error(werr))
		}
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if werr := utils.WriteBadRequest(w, "Validation failed", details); werr != nil {
			logger.Error("failed to write validation error response", zap.Error(werr))
		}
		return
	}

	if werr := utils.WriteBadRequest(w, err.Error(), nil); werr != nil {
		logger.Error("failed to write validation error response", zap.Error(werr))
	}
}
