package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStatus_IsTerminal(t *testing.T) {
	assert.False(t, TaskStatusPending.IsTerminal())
	assert.False(t, TaskStatusInProgress.IsTerminal())
	assert.True(t, TaskStatusSuccess.IsTerminal())
	assert.True(t, TaskStatusFailed.IsTerminal())
	assert.True(t, TaskStatusCanceled.IsTerminal())
	assert.False(t, TaskStatus("DONE").IsValid())
}

func TestTaskType_IsValid(t *testing.T) {
	for _, taskType := range TaskTypes() {
		assert.True(t, taskType.IsValid(), taskType)
	}
	assert.False(t, TaskType("PING").IsValid())
	assert.True(t, TaskTypeReport.IsProjectAnalysis())
	assert.False(t, TaskTypeProjectExport.IsProjectAnalysis())
}

func TestNewComponent_DefaultsEntityToComponent(t *testing.T) {
	c := NewComponent("comp-1", "")
	assert.Equal(t, "comp-1", c.EntityUUID)

	c = NewComponent("branch-1", "proj-1")
	assert.Equal(t, "proj-1", c.EntityUUID)
}

func TestTaskSubmission_Validate(t *testing.T) {
	s := NewTaskSubmission(TaskTypeReport, NewComponent("c", "p"), "user")
	require.NoError(t, s.Validate())

	s.Type = "UNKNOWN"
	assert.Error(t, s.Validate())

	s = NewTaskSubmission(TaskTypeAuditPurge, &Component{}, "")
	assert.Error(t, s.Validate())

	s = NewTaskSubmission(TaskTypeAuditPurge, nil, "")
	assert.NoError(t, s.Validate())
}

func TestTask_Lifecycle(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	task := NewTaskSubmission(TaskTypeReport, NewComponent("c", ""), "user").ToTask(now)

	assert.Equal(t, TaskStatusPending, task.Status)
	assert.Equal(t, 0, task.ExecutionCount)
	assert.Nil(t, task.StartedAt)

	task.MarkInProgress("worker-1", now.Add(time.Second))
	assert.Equal(t, TaskStatusInProgress, task.Status)
	assert.Equal(t, 1, task.ExecutionCount)
	assert.Equal(t, "worker-1", task.WorkerUUID)

	task.Complete("analysis-1", now.Add(3*time.Second))
	assert.Equal(t, TaskStatusSuccess, task.Status)
	assert.Equal(t, "analysis-1", task.AnalysisUUID)
	require.NotNil(t, task.ExecutionTimeMs)
	assert.Equal(t, int64(2000), *task.ExecutionTimeMs)
}

func TestTask_Fail_TruncatesFields(t *testing.T) {
	now := time.Now()
	task := &Task{UUID: "t", StartedAt: &now}

	task.Fail(strings.Repeat("m", MaxErrorMessageLength+10), "stack", strings.Repeat("x", 30), now)

	assert.Equal(t, TaskStatusFailed, task.Status)
	assert.Len(t, task.ErrorMessage, MaxErrorMessageLength)
	assert.Len(t, task.ErrorType, MaxErrorTypeLength)
	assert.Equal(t, "stack", task.ErrorStacktrace)
}

func TestTask_CancelPending_HasNoExecutionTime(t *testing.T) {
	task := &Task{UUID: "t", Status: TaskStatusPending}

	task.Cancel(time.Now())

	assert.Equal(t, TaskStatusCanceled, task.Status)
	assert.NotNil(t, task.ExecutedAt)
	assert.Nil(t, task.ExecutionTimeMs)
}

func TestNewCharacteristics_FiltersUnknownKeys(t *testing.T) {
	c := NewCharacteristics(map[string]string{
		"pullRequest": "42",
		"branch":      "feature/x",
		"unknown":     "dropped",
		"branchType":  "",
	})

	require.Len(t, c, 2)
	assert.Equal(t, Characteristic{Key: "branch", Value: "feature/x"}, c[0])
	assert.Equal(t, Characteristic{Key: "pullRequest", Value: "42"}, c[1])

	branch, ok := c.Branch()
	assert.True(t, ok)
	assert.Equal(t, "feature/x", branch)
	pr, _ := c.PullRequest()
	assert.Equal(t, "42", pr)
	_, ok = c.Get("unknown")
	assert.False(t, ok)
	assert.Equal(t, []string{"branch", "pullRequest"}, c.Keys())
}

func TestFromPairs_KeepsOrder(t *testing.T) {
	pairs := []Characteristic{{Key: "pullRequest", Value: "1"}, {Key: "branch", Value: "b"}}

	c := FromPairs(pairs)

	assert.Equal(t, "pullRequest", c[0].Key)
	assert.Equal(t, map[string]string{"pullRequest": "1", "branch": "b"}, c.Map())
}

func TestMessageType_Traits(t *testing.T) {
	assert.False(t, MessageTypeGeneric.IsDismissible())
	assert.True(t, MessageTypeGeneric.IsWarning())
	assert.False(t, MessageTypeInfo.IsWarning())
	assert.True(t, MessageTypeBranchNCD90.IsDismissible())

	_, ok := ParseMessageType("NOPE")
	assert.False(t, ok)
	parsed, ok := ParseMessageType("GLOBAL_NCD_90")
	assert.True(t, ok)
	assert.Equal(t, MessageTypeGlobalNCD90, parsed)

	assert.NotContains(t, WarningTypes(), MessageTypeInfo)
	assert.Contains(t, WarningTypes(), MessageTypeGeneric)
}

func TestNewTaskMessage_Truncates(t *testing.T) {
	msg := NewTaskMessage("t", MessageTypeGeneric, strings.Repeat("a", MaxMessageLength+1), time.Now())

	assert.Len(t, msg.Text, MaxMessageLength)
	assert.NotEmpty(t, msg.UUID)
}

func TestResolvePauseStatus(t *testing.T) {
	assert.Equal(t, PauseStatusResumed, ResolvePauseStatus(false, 3))
	assert.Equal(t, PauseStatusPausing, ResolvePauseStatus(true, 1))
	assert.Equal(t, PauseStatusPaused, ResolvePauseStatus(true, 0))
}
