package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AnalysisPlatform/services/compute-engine/internal/domain"
)

func TestJSONReportProcessor_Process(t *testing.T) {
	task := &domain.Task{UUID: "task-1", Type: domain.TaskTypeReport}
	input := []byte(`{
		"analysisId": "analysis-9",
		"measures": {"coverage": {"value": 81.5}, "new_coverage": {"leak": 70}},
		"messages": [{"type": "GENERIC", "text": "Some files were skipped"}]
	}`)

	result, err := JSONReportProcessor{}.Process(context.Background(), task, input)
	require.NoError(t, err)
	assert.Equal(t, "analysis-9", result.AnalysisUUID)

	coverage, ok := result.Measures.Measure("coverage")
	require.True(t, ok)
	require.NotNil(t, coverage.Value)
	assert.Equal(t, 81.5, *coverage.Value)

	newCoverage, ok := result.Measures.Measure("new_coverage")
	require.True(t, ok)
	assert.Nil(t, newCoverage.Value)
	require.NotNil(t, newCoverage.LeakValue)
	assert.Equal(t, float64(70), *newCoverage.LeakValue)

	require.Len(t, result.Messages, 1)
	assert.Equal(t, domain.MessageTypeGeneric, result.Messages[0].Type)
}

func TestJSONReportProcessor_GeneratesAnalysisID(t *testing.T) {
	result, err := JSONReportProcessor{}.Process(context.Background(), &domain.Task{UUID: "task-1"}, []byte(`{"measures":{}}`))
	require.NoError(t, err)
	assert.NotEmpty(t, result.AnalysisUUID)
}

func TestJSONReportProcessor_Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType string
	}{
		{name: "empty", input: "", wantType: "MISSING_REPORT"},
		{name: "malformed", input: "{not json", wantType: "INVALID_REPORT"},
		{name: "unknown message type", input: `{"messages":[{"type":"SHOUT","text":"x"}]}`, wantType: "INVALID_REPORT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := JSONReportProcessor{}.Process(context.Background(), &domain.Task{UUID: "task-1"}, []byte(tt.input))
			require.Error(t, err)

			execErr := asExecutionError(err)
			assert.Equal(t, tt.wantType, execErr.Type)
			assert.Contains(t, execErr.Error(), tt.wantType)
		})
	}
}

func TestProcessorRegistry(t *testing.T) {
	registry := NewProcessorRegistry().
		Register(domain.TaskTypeIssueSync, reportResult(nil)).
		Register(domain.TaskTypeReport, JSONReportProcessor{})

	_, ok := registry.Get(domain.TaskTypeReport)
	assert.True(t, ok)
	_, ok = registry.Get(domain.TaskTypeAuditPurge)
	assert.False(t, ok)

	assert.Equal(t, []domain.TaskType{domain.TaskTypeReport, domain.TaskTypeIssueSync}, registry.Types())
}
