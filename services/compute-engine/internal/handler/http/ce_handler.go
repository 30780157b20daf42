package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/pkg/logger"
	"AnalysisPlatform/services/compute-engine/internal/domain"
	"AnalysisPlatform/services/compute-engine/internal/repository"
	"AnalysisPlatform/services/compute-engine/internal/service"
	"AnalysisPlatform/services/compute-engine/internal/usecase"
)

// DefaultMaxReportSize ограничение размера отчета анализа
const DefaultMaxReportSize int64 = 32 << 20

// CEHandler обрабатывает HTTP запросы /api/ce/*
type CEHandler struct {
	tasks         *usecase.TaskUseCase
	admin         *usecase.AdminUseCase
	maxReportSize int64
	logger        logger.Logger
}

// NewCEHandler создает CEHandler. maxReportSize <= 0 означает DefaultMaxReportSize.
func NewCEHandler(tasks *usecase.TaskUseCase, admin *usecase.AdminUseCase, maxReportSize int64, logger logger.Logger) *CEHandler {
	if maxReportSize <= 0 {
		maxReportSize = DefaultMaxReportSize
	}
	return &CEHandler{
		tasks:         tasks,
		admin:         admin,
		maxReportSize: maxReportSize,
		logger:        logger,
	}
}

// Submit принимает отчет анализа в multipart форме:
// projectKey, projectName, повторяемый characteristic=key=value и файл report
func (h *CEHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxReportSize+1<<20)
	if err := r.ParseMultipartForm(h.maxReportSize); err != nil {
		writeError(w, r, h.logger, errors.Wrap(err, errors.ErrValidation, "Invalid multipart request").WithContext(r.Context()))
		return
	}

	file, _, err := r.FormFile("report")
	if err != nil {
		writeError(w, r, h.logger, errors.New(errors.ErrValidation, "The 'report' parameter is missing").WithContext(r.Context()))
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(io.LimitReader(file, h.maxReportSize+1))
	if err != nil {
		writeError(w, r, h.logger, errors.Wrap(err, errors.ErrValidation, "Failed to read analysis report").WithContext(r.Context()))
		return
	}
	if int64(len(payload)) > h.maxReportSize {
		writeError(w, r, h.logger, errors.New(errors.ErrValidation,
			fmt.Sprintf("Analysis report is larger than %d bytes", h.maxReportSize)).WithContext(r.Context()))
		return
	}

	characteristics, err := parseCharacteristics(r.MultipartForm.Value["characteristic"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	submitted, err := h.tasks.SubmitReport(r.Context(), service.ReportSubmission{
		ProjectKey:      r.FormValue("projectKey"),
		ProjectName:     r.FormValue("projectName"),
		Characteristics: characteristics,
		Payload:         payload,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, submitted)
}

func parseCharacteristics(values []string) (map[string]string, error) {
	result := make(map[string]string, len(values))
	for _, v := range values {
		key, value, ok := strings.Cut(v, "=")
		if !ok || key == "" {
			return nil, errors.New(errors.ErrValidation, fmt.Sprintf("Characteristic '%s' must be in the form key=value", v))
		}
		result[key] = value
	}
	return result, nil
}

// Task возвращает задачу по id. additionalFields=warnings добавляет тексты предупреждений.
func (h *CEHandler) Task(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	withWarnings := false
	for _, field := range strings.Split(r.FormValue("additionalFields"), ",") {
		if strings.TrimSpace(field) == "warnings" {
			withWarnings = true
		}
	}

	task, err := h.tasks.GetTask(r.Context(), r.FormValue("id"), withWarnings)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"task": task})
}

// Component возвращает очередь компонента и его последнюю завершенную задачу
func (h *CEHandler) Component(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	activity, err := h.tasks.Component(r.Context(), r.FormValue("component"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, activity)
}

// Pending возвращает задачи компонента в очереди
func (h *CEHandler) Pending(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	tasks, err := h.tasks.Pending(r.Context(), r.FormValue("component"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

// Activity возвращает историю задач с фильтрами component, status, type и ps
func (h *CEHandler) Activity(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	filter := repository.ActivityFilter{
		ComponentUUID: r.FormValue("component"),
		Type:          domain.TaskType(r.FormValue("type")),
	}
	if statuses := r.FormValue("status"); statuses != "" {
		for _, s := range strings.Split(statuses, ",") {
			filter.Statuses = append(filter.Statuses, domain.TaskStatus(strings.TrimSpace(s)))
		}
	}
	if ps := r.FormValue("ps"); ps != "" {
		limit, err := strconv.Atoi(ps)
		if err != nil {
			writeError(w, r, h.logger, errors.New(errors.ErrValidation, fmt.Sprintf("The 'ps' parameter must be an integer, got '%s'", ps)).
				WithContext(r.Context()))
			return
		}
		filter.Limit = limit
	}

	tasks, err := h.tasks.Activity(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

// DismissMessage скрывает тип предупреждения в проекте для текущего пользователя
func (h *CEHandler) DismissMessage(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	messageType, err := requiredParam(r, "messageType")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.tasks.DismissWarning(r.Context(), r.FormValue("project"), messageType); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Info возвращает сводку по очереди и статус паузы
func (h *CEHandler) Info(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	status, err := h.admin.Status(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// WorkerCount возвращает число воркеров узла
func (h *CEHandler) WorkerCount(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	count, err := h.admin.WorkerCount(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, count)
}

// Cancel отменяет задачу в очереди. Для несуществующей задачи отвечает 204.
func (h *CEHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	task, err := h.admin.Cancel(r.Context(), r.FormValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if task == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"task": task})
}

// CancelAll отменяет все задачи в очереди
func (h *CEHandler) CancelAll(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	count, err := h.admin.CancelAll(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"canceled": count})
}

// Pause останавливает захват задач воркерами
func (h *CEHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.admin.Pause)
}

// Resume возобновляет захват задач
func (h *CEHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.admin.Resume)
}

// SubmitPause запрещает постановку задач
func (h *CEHandler) SubmitPause(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.admin.PauseSubmit)
}

// SubmitResume разрешает постановку задач
func (h *CEHandler) SubmitResume(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.admin.ResumeSubmit)
}

// command выполняет POST операцию без тела ответа
func (h *CEHandler) command(w http.ResponseWriter, r *http.Request, run func(ctx context.Context) error) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if err := run(r.Context()); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
