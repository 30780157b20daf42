package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"AnalysisPlatform/pkg/mocks"
	"AnalysisPlatform/services/compute-engine/internal/domain"
	"AnalysisPlatform/services/compute-engine/internal/qualitygate"
	"AnalysisPlatform/services/compute-engine/internal/repository/memory"
)

type harness struct {
	properties *memory.PropertyStore
	tasks      *memory.TaskStore
	messages   *memory.MessageStore
	gateStore  *memory.QualityGateStore
	projects   *memory.ProjectStore
	registry   *memory.WorkerRegistry
	log        *mocks.MockLogger

	submissions  *SubmissionService
	admission    *AdmissionService
	cancellation *CancellationService
	messageSvc   *MessageService
	gates        *QualityGateService
	queries      *QueryService
	processors   *ProcessorRegistry
	pool         *WorkerPool
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		properties: memory.NewPropertyStore(),
		messages:   memory.NewMessageStore(),
		gateStore:  memory.NewQualityGateStore(),
		projects:   memory.NewProjectStore(),
		registry:   memory.NewWorkerRegistry(time.Now),
		log:        mocks.NewPermissiveLogger(),
		processors: NewProcessorRegistry(),
	}
	h.tasks = memory.NewTaskStore(h.properties)

	h.submissions = NewSubmissionService(h.tasks, h.properties, h.log)
	h.admission = NewAdmissionService(h.properties, h.tasks, StaticWorkerCount{Count: 2}, h.log)
	h.cancellation = NewCancellationService(h.tasks, nil, h.log)
	h.messageSvc = NewMessageService(h.messages, h.log)
	h.gates = NewQualityGateService(h.gateStore, qualitygate.BuiltinCatalog(), qualitygate.DefaultEvaluatorConfig(), h.log)
	h.queries = NewQueryService(h.tasks, h.tasks, h.messageSvc)

	pool, err := NewWorkerPool(PoolConfig{
		NodeID:          "node-1",
		WorkerCount:     2,
		PollInterval:    5 * time.Millisecond,
		MaxPollInterval: 20 * time.Millisecond,
		ShutdownTimeout: 5 * time.Second,
	}, PoolDependencies{
		Queue:      h.tasks,
		Lifecycle:  h.tasks,
		Admission:  h.admission,
		Processors: h.processors,
		Messages:   h.messageSvc,
		Gates:      h.gates,
		Logger:     h.log,
	})
	require.NoError(t, err)
	h.pool = pool
	return h
}

func (h *harness) submitReport(t *testing.T, projectUUID string) *domain.Task {
	t.Helper()
	task, err := h.submissions.Submit(context.Background(),
		domain.NewTaskSubmission(domain.TaskTypeReport, domain.NewComponent(projectUUID, ""), "user-1"))
	require.NoError(t, err)
	return task
}

func (h *harness) worker() string {
	return h.pool.WorkerUUIDs()[0]
}
