package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"AnalysisPlatform/pkg/logger"
)

// errorDomain используется как домен в gRPC ErrorInfo
const errorDomain = "analysis-platform"

// Error представляет ошибку приложения с кодом и деталями
type Error struct {
	Code    ErrorCode       `json:"code"`
	Message string          `json:"message"`
	Details string          `json:"details,omitempty"`
	Cause   error           `json:"-"`
	Context context.Context `json:"-"`
}

// ErrorCode представляет код ошибки
type ErrorCode string

// Определение кодов ошибок
const (
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrValidation   ErrorCode = "VALIDATION_ERROR"
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrForbidden    ErrorCode = "FORBIDDEN"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
	ErrConflict     ErrorCode = "CONFLICT"
	ErrRateLimited  ErrorCode = "RATE_LIMITED"
)

// Error возвращает сообщение об ошибке
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap возвращает причину ошибки
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is сравнивает ошибки по коду
func (e *Error) Is(target error) bool {
	if targetError, ok := target.(*Error); ok {
		return e.Code == targetError.Code
	}
	return false
}

// New создает новую ошибку
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap оборачивает существующую ошибку
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WithDetails возвращает копию ошибки с деталями
func (e *Error) WithDetails(details string) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Details = details
	return &cp
}

// WithContext возвращает копию ошибки с контекстом запроса
func (e *Error) WithContext(ctx context.Context) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Context = ctx
	return &cp
}

// CodeOf возвращает код первой ошибки приложения в цепочке
func CodeOf(err error) (ErrorCode, bool) {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Code, true
	}
	return "", false
}

// IsCode проверяет, что в цепочке есть ошибка приложения с указанным кодом
func IsCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// ToGRPCErr переводит ошибку в gRPC статус
func (e *Error) ToGRPCErr() error {
	if e == nil {
		return nil
	}

	var grpcCode codes.Code
	switch e.Code {
	case ErrNotFound:
		grpcCode = codes.NotFound
	case ErrValidation:
		grpcCode = codes.InvalidArgument
	case ErrUnauthorized:
		grpcCode = codes.Unauthenticated
	case ErrForbidden:
		grpcCode = codes.PermissionDenied
	case ErrConflict:
		grpcCode = codes.AlreadyExists
	case ErrRateLimited:
		grpcCode = codes.ResourceExhausted
	case ErrInternal:
		grpcCode = codes.Internal
	default:
		grpcCode = codes.Unknown
	}

	st := status.New(grpcCode, e.Message)

	if e.Details != "" {
		info := &errdetails.ErrorInfo{
			Reason:   string(e.Code),
			Domain:   errorDomain,
			Metadata: map[string]string{"details": e.Details},
		}
		if traceID, ok := logger.TraceID(e.Context); ok {
			info.Metadata["trace_id"] = traceID
		}
		if withDetails, err := st.WithDetails(info); err == nil {
			st = withDetails
		}
	}

	return st.Err()
}

// FromGRPCErr преобразует gRPC ошибку в ошибку приложения
func FromGRPCErr(err error) *Error {
	if err == nil {
		return nil
	}

	grpcStatus, ok := status.FromError(err)
	if !ok {
		return Wrap(err, ErrInternal, "internal error")
	}

	var code ErrorCode
	switch grpcStatus.Code() {
	case codes.NotFound:
		code = ErrNotFound
	case codes.InvalidArgument:
		code = ErrValidation
	case codes.Unauthenticated:
		code = ErrUnauthorized
	case codes.PermissionDenied:
		code = ErrForbidden
	case codes.AlreadyExists:
		code = ErrConflict
	case codes.ResourceExhausted:
		code = ErrRateLimited
	default:
		code = ErrInternal
	}

	return &Error{
		Code:    code,
		Message: grpcStatus.Message(),
		Details: ExtractErrorDetails(err),
	}
}

// ExtractErrorDetails извлекает детали из gRPC ошибки
func ExtractErrorDetails(err error) string {
	if err == nil {
		return ""
	}

	grpcStatus, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, detail := range grpcStatus.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok {
			return info.GetMetadata()["details"]
		}
	}
	return ""
}

// HTTPStatus возвращает HTTP статус для ошибки
func (e *Error) HTTPStatus() int {
	if e == nil {
		return http.StatusOK
	}

	switch e.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrValidation:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrConflict:
		return http.StatusConflict
	case ErrRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// GetUserMessage возвращает сообщение для клиента.
// Для клиентских ошибок это исходное сообщение, для внутренних - общее.
func (e *Error) GetUserMessage() string {
	if e == nil {
		return ""
	}
	if e.Code == ErrInternal || e.Code == "" {
		return "Internal server error"
	}
	return e.Message
}

// WriteJSON пишет ошибку в HTTP ответ.
// Ошибки не из этого пакета отдаются как INTERNAL_ERROR.
func WriteJSON(w http.ResponseWriter, err error) {
	var appErr *Error
	if !stderrors.As(err, &appErr) {
		appErr = Wrap(err, ErrInternal, "internal error")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.HTTPStatus())

	body := map[string]interface{}{
		"error": map[string]interface{}{
			"code":    appErr.Code,
			"message": appErr.GetUserMessage(),
			"details": appErr.Details,
		},
	}
	_ = json.NewEncoder(w).Encode(body)
}

// Middleware перехватывает панику в обработчиках и отдает INTERNAL_ERROR
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				WriteJSON(w, New(ErrInternal, "internal server error").
					WithDetails(fmt.Sprintf("panic: %v", recovered)).
					WithContext(r.Context()))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
