package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/pkg/mocks"
	"AnalysisPlatform/services/compute-engine/internal/auth"
	"AnalysisPlatform/services/compute-engine/internal/domain"
	"AnalysisPlatform/services/compute-engine/internal/qualitygate"
	"AnalysisPlatform/services/compute-engine/internal/repository"
	"AnalysisPlatform/services/compute-engine/internal/repository/memory"
	"AnalysisPlatform/services/compute-engine/internal/service"
)

type fixture struct {
	tasks       *memory.TaskStore
	submissions *service.SubmissionService
	limiter     *mocks.MockRateLimiter

	admin *AdminUseCase
	task  *TaskUseCase
	gates *QualityGateUseCase
}

func newFixture(t *testing.T, limit SubmitLimit) *fixture {
	t.Helper()

	log := mocks.NewPermissiveLogger()
	properties := memory.NewPropertyStore()
	tasks := memory.NewTaskStore(properties)
	messages := service.NewMessageService(memory.NewMessageStore(), log)

	submissions := service.NewSubmissionService(tasks, properties, log)
	admission := service.NewAdmissionService(properties, tasks, service.StaticWorkerCount{Count: 3}, log)
	cancellation := service.NewCancellationService(tasks, nil, log)
	queries := service.NewQueryService(tasks, tasks, messages)
	reports := service.NewReportSubmitter(memory.NewProjectStore(), submissions, log)
	gates := service.NewQualityGateService(memory.NewQualityGateStore(), qualitygate.BuiltinCatalog(), qualitygate.DefaultEvaluatorConfig(), log)

	limiter := &mocks.MockRateLimiter{}
	return &fixture{
		tasks:       tasks,
		submissions: submissions,
		limiter:     limiter,
		admin:       NewAdminUseCase(admission, submissions, cancellation, queries, log),
		task:        NewTaskUseCase(reports, queries, messages, limiter, limit, log),
		gates:       NewQualityGateUseCase(gates, log),
	}
}

func (f *fixture) submit(t *testing.T, component *domain.Component) *domain.Task {
	t.Helper()
	task, err := f.submissions.Submit(context.Background(), domain.NewTaskSubmission(domain.TaskTypeReport, component, "user-1"))
	require.NoError(t, err)
	return task
}

func adminCtx() context.Context {
	return auth.WithIdentity(context.Background(), &auth.Identity{UserUUID: "admin", IsAdmin: true})
}

func userCtx(permissions ...string) context.Context {
	return auth.WithIdentity(context.Background(), &auth.Identity{UserUUID: "user-2", Permissions: permissions})
}

func TestAdminUseCase_RequiresSystemAdmin(t *testing.T) {
	f := newFixture(t, SubmitLimit{})

	err := f.admin.Pause(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrUnauthorized))

	err = f.admin.Pause(userCtx())
	assert.True(t, errors.IsCode(err, errors.ErrForbidden))

	_, err = f.admin.CancelAll(userCtx())
	assert.True(t, errors.IsCode(err, errors.ErrForbidden))

	passcode := auth.WithIdentity(context.Background(), &auth.Identity{IsAdmin: true, ViaPasscode: true})
	require.NoError(t, f.admin.Pause(passcode))

	status, err := f.admin.Status(adminCtx())
	require.NoError(t, err)
	assert.Equal(t, domain.PauseStatusPaused, status.PauseStatus)

	require.NoError(t, f.admin.Resume(adminCtx()))
	status, err = f.admin.Status(adminCtx())
	require.NoError(t, err)
	assert.Equal(t, domain.PauseStatusResumed, status.PauseStatus)

	count, err := f.admin.WorkerCount(adminCtx())
	require.NoError(t, err)
	assert.Equal(t, 3, count.Value)
}

func TestAdminUseCase_Cancel(t *testing.T) {
	f := newFixture(t, SubmitLimit{})
	task := f.submit(t, domain.NewComponent("branch-1", "project-1"))

	_, err := f.admin.Cancel(adminCtx(), "")
	assert.True(t, errors.IsCode(err, errors.ErrValidation))

	// отмена несуществующей задачи ничего не делает
	view, err := f.admin.Cancel(adminCtx(), "missing")
	require.NoError(t, err)
	assert.Nil(t, view)

	_, err = f.admin.Cancel(userCtx(auth.ComponentPermission("project-1")), "missing")
	assert.True(t, errors.IsCode(err, errors.ErrForbidden))

	_, err = f.admin.Cancel(userCtx(auth.ComponentPermission("other")), task.UUID)
	assert.True(t, errors.IsCode(err, errors.ErrForbidden))

	view, err = f.admin.Cancel(userCtx(auth.ComponentPermission("project-1")), task.UUID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCanceled, view.Status)

	// повторная отмена возвращает задачу из истории без изменений
	view, err = f.admin.Cancel(adminCtx(), task.UUID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCanceled, view.Status)
}

func TestAdminUseCase_Cancel_InProgressIsUnchanged(t *testing.T) {
	f := newFixture(t, SubmitLimit{})
	task := f.submit(t, domain.NewComponent("project-1", ""))

	claimed, err := f.tasks.Claim(context.Background(), "worker-1", time.Now())
	require.NoError(t, err)
	require.Equal(t, task.UUID, claimed.UUID)

	view, err := f.admin.Cancel(adminCtx(), task.UUID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusInProgress, view.Status)
}

func TestAdminUseCase_Cancel_TaskWithoutComponentNeedsSystemAdmin(t *testing.T) {
	f := newFixture(t, SubmitLimit{})
	task := f.submit(t, nil)

	_, err := f.admin.Cancel(userCtx(auth.ComponentPermission("project-1")), task.UUID)
	assert.True(t, errors.IsCode(err, errors.ErrForbidden))

	view, err := f.admin.Cancel(adminCtx(), task.UUID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCanceled, view.Status)
}

func TestAdminUseCase_SubmitPause(t *testing.T) {
	f := newFixture(t, SubmitLimit{})

	require.NoError(t, f.admin.PauseSubmit(adminCtx()))
	_, err := f.submissions.Submit(context.Background(), domain.NewTaskSubmission(domain.TaskTypeReport, nil, ""))
	assert.True(t, errors.IsCode(err, errors.ErrConflict))

	require.NoError(t, f.admin.ResumeSubmit(adminCtx()))
	f.submit(t, nil)

	count, err := f.admin.CancelAll(adminCtx())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestTaskUseCase_SubmitReport(t *testing.T) {
	f := newFixture(t, SubmitLimit{Limit: 2, Window: time.Minute})
	f.limiter.On("Allow", mock.Anything, "ce-submit:user:user-2", 2, time.Minute).Return(true, nil).Once()
	f.limiter.On("Allow", mock.Anything, "ce-submit:user:user-2", 2, time.Minute).Return(false, nil).Once()

	report := service.ReportSubmission{ProjectKey: "my-app", Payload: []byte(`{"measures":{}}`)}

	submitted, err := f.task.SubmitReport(userCtx(), report)
	require.NoError(t, err)
	assert.NotEmpty(t, submitted.TaskUUID)

	task, err := f.task.GetTask(userCtx(), submitted.TaskUUID, false)
	require.NoError(t, err)
	assert.Equal(t, "user-2", task.SubmitterUUID)
	assert.Equal(t, submitted.ProjectUUID, task.ComponentUUID())

	_, err = f.task.SubmitReport(userCtx(), report)
	assert.True(t, errors.IsCode(err, errors.ErrRateLimited))

	_, err = f.task.SubmitReport(context.Background(), report)
	assert.True(t, errors.IsCode(err, errors.ErrUnauthorized))

	f.limiter.AssertExpectations(t)
}

func TestTaskUseCase_SubmitReport_LimiterFailureAllows(t *testing.T) {
	f := newFixture(t, SubmitLimit{Limit: 1, Window: time.Minute})
	f.limiter.On("Allow", mock.Anything, mock.Anything, 1, time.Minute).Return(false, assert.AnError)

	_, err := f.task.SubmitReport(userCtx(), service.ReportSubmission{ProjectKey: "my-app"})
	assert.NoError(t, err)
}

func TestTaskUseCase_SubmitReport_NoLimit(t *testing.T) {
	f := newFixture(t, SubmitLimit{})

	_, err := f.task.SubmitReport(userCtx(), service.ReportSubmission{ProjectKey: "my-app"})
	require.NoError(t, err)
	f.limiter.AssertNotCalled(t, "Allow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTaskUseCase_Activity(t *testing.T) {
	f := newFixture(t, SubmitLimit{})
	task := f.submit(t, domain.NewComponent("project-1", ""))
	_, err := f.admin.Cancel(adminCtx(), task.UUID)
	require.NoError(t, err)

	_, err = f.task.Activity(userCtx(), repository.ActivityFilter{})
	assert.True(t, errors.IsCode(err, errors.ErrForbidden))

	_, err = f.task.Activity(adminCtx(), repository.ActivityFilter{Statuses: []domain.TaskStatus{domain.TaskStatusPending}})
	assert.True(t, errors.IsCode(err, errors.ErrValidation))

	_, err = f.task.Activity(adminCtx(), repository.ActivityFilter{Type: "UNKNOWN"})
	assert.True(t, errors.IsCode(err, errors.ErrValidation))

	views, err := f.task.Activity(userCtx(), repository.ActivityFilter{ComponentUUID: "project-1"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, task.UUID, views[0].UUID)
}

func TestTaskUseCase_ComponentAndPending(t *testing.T) {
	f := newFixture(t, SubmitLimit{})
	task := f.submit(t, domain.NewComponent("project-1", ""))

	_, err := f.task.Component(userCtx(), "")
	assert.True(t, errors.IsCode(err, errors.ErrValidation))

	activity, err := f.task.Component(userCtx(), "project-1")
	require.NoError(t, err)
	require.Len(t, activity.Queue, 1)
	assert.Nil(t, activity.Current)

	pending, err := f.task.Pending(userCtx(), "project-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, task.UUID, pending[0].UUID)
}

func TestTaskUseCase_DismissWarning(t *testing.T) {
	f := newFixture(t, SubmitLimit{})

	passcode := auth.WithIdentity(context.Background(), &auth.Identity{IsAdmin: true, ViaPasscode: true})
	err := f.task.DismissWarning(passcode, "project-1", string(domain.MessageTypeBranchNCD90))
	assert.True(t, errors.IsCode(err, errors.ErrUnauthorized))

	err = f.task.DismissWarning(userCtx(), "", string(domain.MessageTypeBranchNCD90))
	assert.True(t, errors.IsCode(err, errors.ErrValidation))

	err = f.task.DismissWarning(userCtx(), "project-1", string(domain.MessageTypeGeneric))
	assert.True(t, errors.IsCode(err, errors.ErrValidation))

	assert.NoError(t, f.task.DismissWarning(userCtx(), "project-1", string(domain.MessageTypeBranchNCD90)))
}

func TestQualityGateUseCase_Permissions(t *testing.T) {
	f := newFixture(t, SubmitLimit{})

	_, err := f.gates.Create(userCtx(), "Strict")
	assert.True(t, errors.IsCode(err, errors.ErrForbidden))

	gate, err := f.gates.Create(adminCtx(), "Strict")
	require.NoError(t, err)

	condition, err := f.gates.CreateCondition(adminCtx(), gate.ID, qualitygate.Condition{
		MetricKey:      "coverage",
		Operator:       qualitygate.OperatorLessThan,
		ErrorThreshold: "80",
	})
	require.NoError(t, err)

	shown, err := f.gates.Show(userCtx(), gate.ID)
	require.NoError(t, err)
	require.Len(t, shown.Conditions, 1)

	err = f.gates.DeleteCondition(userCtx(), condition.ID)
	assert.True(t, errors.IsCode(err, errors.ErrForbidden))

	err = f.gates.Select(userCtx(), gate.ID, "project-1")
	assert.True(t, errors.IsCode(err, errors.ErrForbidden))

	require.NoError(t, f.gates.Select(userCtx(auth.ComponentPermission("project-1")), gate.ID, "project-1"))
	projectGate, err := f.gates.ForProject(userCtx(), "project-1")
	require.NoError(t, err)
	assert.Equal(t, gate.ID, projectGate.ID)

	require.NoError(t, f.gates.Deselect(adminCtx(), "project-1"))
	_, err = f.gates.ForProject(userCtx(), "project-1")
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))

	metrics, err := f.gates.Metrics(userCtx())
	require.NoError(t, err)
	assert.NotEmpty(t, metrics)

	_, err = f.gates.Metrics(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrUnauthorized))
}
