package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/pkg/logger"
)

// writeJSON пишет тело ответа в формате JSON
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError пишет ошибку через pkg/errors. Внутренние ошибки дополнительно логируются.
func writeError(w http.ResponseWriter, r *http.Request, log logger.Logger, err error) {
	if code, ok := errors.CodeOf(err); !ok || code == errors.ErrInternal {
		log.Error("Request failed",
			logger.String("path", r.URL.Path),
			logger.Error(err),
			logger.CtxField(r.Context()),
		)
	}
	errors.WriteJSON(w, err)
}

// allowMethod проверяет метод запроса и пишет ошибку, если он не подходит
func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	errors.WriteJSON(w, errors.New(errors.ErrValidation, "Method not allowed").
		WithDetails(fmt.Sprintf("Only %s method is allowed", method)).
		WithContext(r.Context()))
	return false
}

// requiredParam возвращает обязательный параметр запроса
func requiredParam(r *http.Request, name string) (string, error) {
	value := r.FormValue(name)
	if value == "" {
		return "", errors.New(errors.ErrValidation, fmt.Sprintf("The '%s' parameter is missing", name)).WithContext(r.Context())
	}
	return value, nil
}

// idParam возвращает обязательный числовой идентификатор
func idParam(r *http.Request, name string) (int64, error) {
	value, err := requiredParam(r, name)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, errors.New(errors.ErrValidation, fmt.Sprintf("The '%s' parameter must be an integer, got '%s'", name, value)).
			WithContext(r.Context())
	}
	return id, nil
}
