package http

import (
	"context"
	"net/http"

	"AnalysisPlatform/pkg/logger"
	"AnalysisPlatform/services/compute-engine/internal/qualitygate"
	"AnalysisPlatform/services/compute-engine/internal/usecase"
)

// QualityGateHandler обрабатывает HTTP запросы /api/qualitygates/*
type QualityGateHandler struct {
	gates  *usecase.QualityGateUseCase
	logger logger.Logger
}

// NewQualityGateHandler создает QualityGateHandler
func NewQualityGateHandler(gates *usecase.QualityGateUseCase, logger logger.Logger) *QualityGateHandler {
	return &QualityGateHandler{gates: gates, logger: logger}
}

// List возвращает все gate и id gate по умолчанию
func (h *QualityGateHandler) List(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	gates, err := h.gates.List(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response := map[string]interface{}{"qualitygates": gates}
	for _, g := range gates {
		if g.IsDefault {
			response["default"] = g.ID
		}
	}
	writeJSON(w, http.StatusOK, response)
}

// Show возвращает gate с условиями по id или по name
func (h *QualityGateHandler) Show(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	var (
		gate *qualitygate.QualityGate
		err  error
	)
	if name := r.URL.Query().Get("name"); name != "" && r.URL.Query().Get("id") == "" {
		gate, err = h.gates.ShowByName(r.Context(), name)
	} else {
		var id int64
		if id, err = idParam(r, "id"); err == nil {
			gate, err = h.gates.Show(r.Context(), id)
		}
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, gate)
}

// GetByProject возвращает gate, действующий для проекта
func (h *QualityGateHandler) GetByProject(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	project, err := requiredParam(r, "project")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	gate, err := h.gates.ForProject(r.Context(), project)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"qualityGate": gate})
}

// Create создает пустой gate
func (h *QualityGateHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	gate, err := h.gates.Create(r.Context(), r.FormValue("name"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, gate)
}

// Destroy удаляет gate
func (h *QualityGateHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	h.gateCommand(w, r, h.gates.Delete)
}

// SetAsDefault делает gate действующим по умолчанию
func (h *QualityGateHandler) SetAsDefault(w http.ResponseWriter, r *http.Request) {
	h.gateCommand(w, r, h.gates.SetAsDefault)
}

// Select привязывает проект к gate
func (h *QualityGateHandler) Select(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	gateID, err := idParam(r, "gateId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	project, err := requiredParam(r, "projectId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.gates.Select(r.Context(), gateID, project); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Deselect отвязывает проект от gate
func (h *QualityGateHandler) Deselect(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	project, err := requiredParam(r, "projectId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.gates.Deselect(r.Context(), project); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateCondition добавляет условие в gate
func (h *QualityGateHandler) CreateCondition(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	gateID, err := idParam(r, "gateId")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	condition, err := h.gates.CreateCondition(r.Context(), gateID, conditionFromRequest(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, condition)
}

// UpdateCondition заменяет условие
func (h *QualityGateHandler) UpdateCondition(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	condition := conditionFromRequest(r)
	condition.ID = id

	updated, err := h.gates.UpdateCondition(r.Context(), condition)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// DeleteCondition удаляет условие
func (h *QualityGateHandler) DeleteCondition(w http.ResponseWriter, r *http.Request) {
	h.gateCommand(w, r, h.gates.DeleteCondition)
}

// Metrics возвращает метрики, на которые можно ставить условия
func (h *QualityGateHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	metrics, err := h.gates.Metrics(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"metrics": metrics})
}

// gateCommand выполняет POST операцию над объектом с параметром id
func (h *QualityGateHandler) gateCommand(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, id int64) error) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := run(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// conditionFromRequest читает условие из параметров metric, op, warning, error и period.
// period=1 означает условие на новый код.
func conditionFromRequest(r *http.Request) qualitygate.Condition {
	return qualitygate.Condition{
		MetricKey:        r.FormValue("metric"),
		Operator:         qualitygate.Operator(r.FormValue("op")),
		WarningThreshold: r.FormValue("warning"),
		ErrorThreshold:   r.FormValue("error"),
		OnLeakPeriod:     r.FormValue("period") == "1",
	}
}
