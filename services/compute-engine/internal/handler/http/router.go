package http

import (
	"net/http"

	"AnalysisPlatform/pkg/logger"
	"AnalysisPlatform/services/compute-engine/internal/auth"
)

// RegisterRoutes регистрирует API очереди и quality gate.
// Все маршруты проходят через аутентификацию, права проверяются в usecase.
func RegisterRoutes(mux *http.ServeMux, ce *CEHandler, gates *QualityGateHandler, authenticator *auth.Authenticator, log logger.Logger) {
	authenticated := auth.Middleware(authenticator, log)
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, authenticated(h))
	}

	handle("/api/ce/submit", ce.Submit)
	handle("/api/ce/task", ce.Task)
	handle("/api/ce/component", ce.Component)
	handle("/api/ce/pending", ce.Pending)
	handle("/api/ce/activity", ce.Activity)
	handle("/api/ce/dismiss_message", ce.DismissMessage)
	handle("/api/ce/info", ce.Info)
	handle("/api/ce/worker_count", ce.WorkerCount)
	handle("/api/ce/cancel", ce.Cancel)
	handle("/api/ce/cancel_all", ce.CancelAll)
	handle("/api/ce/pause", ce.Pause)
	handle("/api/ce/resume", ce.Resume)
	handle("/api/ce/submit_pause", ce.SubmitPause)
	handle("/api/ce/submit_resume", ce.SubmitResume)

	handle("/api/qualitygates/list", gates.List)
	handle("/api/qualitygates/show", gates.Show)
	handle("/api/qualitygates/get_by_project", gates.GetByProject)
	handle("/api/qualitygates/create", gates.Create)
	handle("/api/qualitygates/destroy", gates.Destroy)
	handle("/api/qualitygates/set_as_default", gates.SetAsDefault)
	handle("/api/qualitygates/select", gates.Select)
	handle("/api/qualitygates/deselect", gates.Deselect)
	handle("/api/qualitygates/create_condition", gates.CreateCondition)
	handle("/api/qualitygates/update_condition", gates.UpdateCondition)
	handle("/api/qualitygates/delete_condition", gates.DeleteCondition)
	handle("/api/qualitygates/metrics", gates.Metrics)
}
