package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wajahat01/NeuroLab-360-sub000/pkg/errors"
	"github.com/wajahat01/NeuroLab-360-sub000/pkg/resilience"
)

// APIResponse is the standard response envelope.
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Meta      *Meta       `json:"meta,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError carries the error code, message and optional details.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Meta carries response metadata: pagination plus the degradation
// contract consumed by the frontend. The field names are load-bearing;
// clients branch on them to render stale-data banners and retry hints.
type Meta struct {
	Pagination *Pagination `json:"pagination,omitempty"`

	Cached             bool    `json:"cached,omitempty"`
	Stale              bool    `json:"stale,omitempty"`
	ServiceDegraded    bool    `json:"service_degraded,omitempty"`
	PartialFailure     bool    `json:"partial_failure,omitempty"`
	CircuitBreakerOpen bool    `json:"circuit_breaker_open,omitempty"`
	FallbackSource     string  `json:"fallback_source,omitempty"`
	Confidence         float64 `json:"confidence,omitempty"`
	DegradationMessage string  `json:"degradation_message,omitempty"`
	RetryAfter         int     `json:"retry_after,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Pagination is the pagination block of Meta.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// MetaFromResult converts a degradation outcome into response metadata.
// Healthy results produce no annotations beyond the timestamp.
func MetaFromResult(result *resilience.OperationResult) *Meta {
	meta := &Meta{Timestamp: time.Now().UTC()}
	if result == nil {
		return meta
	}

	meta.Stale = result.Stale
	meta.ServiceDegraded = result.Degraded
	meta.PartialFailure = result.PartialFailure
	meta.CircuitBreakerOpen = result.BreakerOpen
	meta.FallbackSource = result.FallbackSource
	meta.Confidence = result.Confidence
	meta.DegradationMessage = result.Message
	if result.RetryAfter > 0 {
		meta.RetryAfter = int(result.RetryAfter.Seconds())
	}
	return meta
}

// CachedMeta marks a response as served from cache.
func CachedMeta() *Meta {
	return &Meta{Cached: true, Timestamp: time.Now().UTC()}
}

func requestID(c *gin.Context) string {
	return c.GetString("request_id")
}

// SuccessResponse sends a 200 response.
func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Success:   true,
		Data:      data,
		RequestID: requestID(c),
		Timestamp: time.Now().UTC(),
	})
}

// SuccessResponseWithMeta sends a 200 response with metadata.
func SuccessResponseWithMeta(c *gin.Context, data interface{}, meta *Meta) {
	if meta != nil && meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now().UTC()
	}
	c.JSON(http.StatusOK, APIResponse{
		Success:   true,
		Data:      data,
		Meta:      meta,
		RequestID: requestID(c),
		Timestamp: time.Now().UTC(),
	})
}

// CreatedResponse sends a 201 response.
func CreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{
		Success:   true,
		Data:      data,
		RequestID: requestID(c),
		Timestamp: time.Now().UTC(),
	})
}

// NoContentResponse sends a 204 response.
func NoContentResponse(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// ErrorResponseFromError maps an application error to its HTTP shape.
// Unavailable errors additionally carry a Retry-After header so clients
// get a concrete backoff signal instead of an opaque failure.
func ErrorResponseFromError(c *gin.Context, err error) {
	statusCode := http.StatusInternalServerError
	apiError := &APIError{
		Code:    "UNKNOWN_ERROR",
		Message: "An unknown error occurred",
	}

	if appErr, ok := err.(*errors.AppError); ok {
		statusCode = httpStatusFor(appErr.Type)
		apiError = &APIError{
			Code:    appErr.Code,
			Message: appErr.Message,
		}
		if len(appErr.Details) > 0 {
			apiError.Details = make(map[string]interface{}, len(appErr.Details))
			for k, v := range appErr.Details {
				apiError.Details[k] = v
			}
		}
	}

	c.JSON(statusCode, APIResponse{
		Success:   false,
		Error:     apiError,
		RequestID: requestID(c),
		Timestamp: time.Now().UTC(),
	})
}

// UnavailableResponse sends a 503 response annotated with the
// degradation outcome of the failed operation.
func UnavailableResponse(c *gin.Context, err error, result *resilience.OperationResult) {
	apiError := &APIError{
		Code:    "SERVICE_UNAVAILABLE",
		Message: "Service is temporarily unavailable",
	}
	if appErr, ok := err.(*errors.AppError); ok {
		apiError.Code = appErr.Code
		apiError.Message = appErr.Message
	}

	meta := MetaFromResult(result)
	if meta.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(meta.RetryAfter))
	}

	c.JSON(http.StatusServiceUnavailable, APIResponse{
		Success:   false,
		Error:     apiError,
		Meta:      meta,
		RequestID: requestID(c),
		Timestamp: time.Now().UTC(),
	})
}

// BadRequestResponse sends a 400 response.
func BadRequestResponse(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, APIResponse{
		Success:   false,
		Error:     &APIError{Code: "BAD_REQUEST", Message: message},
		RequestID: requestID(c),
		Timestamp: time.Now().UTC(),
	})
}

// UnauthorizedResponse sends a 401 response.
func UnauthorizedResponse(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, APIResponse{
		Success:   false,
		Error:     &APIError{Code: "UNAUTHORIZED", Message: message},
		RequestID: requestID(c),
		Timestamp: time.Now().UTC(),
	})
}

// NotFoundResponse sends a 404 response.
func NotFoundResponse(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, APIResponse{
		Success:   false,
		Error:     &APIError{Code: "NOT_FOUND", Message: message},
		RequestID: requestID(c),
		Timestamp: time.Now().UTC(),
	})
}

// ValidationErrorResponse sends a 400 response with field details.
func ValidationErrorResponse(c *gin.Context, message string, details map[string]interface{}) {
	c.JSON(http.StatusBadRequest, APIResponse{
		Success:   false,
		Error:     &APIError{Code: "VALIDATION_ERROR", Message: message, Details: details},
		RequestID: requestID(c),
		Timestamp: time.Now().UTC(),
	})
}

func httpStatusFor(errorType errors.ErrorType) int {
	switch errorType {
	case errors.ErrorTypeValidation:
		return http.StatusBadRequest
	case errors.ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case errors.ErrorTypeAuthorization:
		return http.StatusForbidden
	case errors.ErrorTypeNotFound:
		return http.StatusNotFound
	case errors.ErrorTypeConflict:
		return http.StatusConflict
	case errors.ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case errors.ErrorTypeTimeout:
		return http.StatusRequestTimeout
	case errors.ErrorTypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewPagination builds pagination metadata.
func NewPagination(page, pageSize int, total int64) *Pagination {
	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	return &Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// PaginatedResponse sends a 200 response with pagination metadata,
// merging in any degradation annotations.
func PaginatedResponse(c *gin.Context, data interface{}, page, pageSize int, total int64, meta *Meta) {
	if meta == nil {
		meta = &Meta{}
	}
	meta.Pagination = NewPagination(page, pageSize, total)
	SuccessResponseWithMeta(c, data, meta)
}
