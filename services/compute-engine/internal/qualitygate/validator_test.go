package qualitygate

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AnalysisPlatform/pkg/errors"
)

func violationsOf(t *testing.T, err error) Violations {
	t.Helper()
	require.Error(t, err)
	var v Violations
	require.True(t, stderrors.As(err, &v), "expected violations, got %v", err)
	return v
}

func TestConditionValidator_Valid(t *testing.T) {
	v := NewConditionValidator(BuiltinCatalog())

	cond, err := v.Validate(Condition{MetricKey: "new_coverage", Operator: "LT", ErrorThreshold: "80", OnLeakPeriod: true}, nil)

	require.NoError(t, err)
	assert.Equal(t, OperatorLessThan, cond.Operator)
	assert.Equal(t, KindFloat, cond.Kind)
}

func TestConditionValidator_UnknownMetric(t *testing.T) {
	v := NewConditionValidator(BuiltinCatalog())

	_, err := v.Validate(Condition{MetricKey: "nope", Operator: OperatorGreaterThan, ErrorThreshold: "1"}, nil)

	assert.True(t, errors.IsCode(err, errors.ErrNotFound))
	assert.Contains(t, err.Error(), "There is no metric with key=nope")
}

func TestConditionValidator_IneligibleMetrics(t *testing.T) {
	v := NewConditionValidator(BuiltinCatalog())

	for _, key := range []string{"alert_status", "quality_gate_details", "contains_ai_code"} {
		_, err := v.Validate(Condition{MetricKey: key, Operator: OperatorEquals, ErrorThreshold: "1"}, nil)
		assert.Contains(t, violationsOf(t, err), "Metric '"+key+"' cannot be used to define a condition.")
	}
}

func TestConditionValidator_OperatorDirection(t *testing.T) {
	v := NewConditionValidator(BuiltinCatalog())

	_, err := v.Validate(Condition{MetricKey: "coverage", Operator: OperatorGreaterThan, ErrorThreshold: "80"}, nil)
	assert.Contains(t, violationsOf(t, err), "Operator GT is not allowed for this metric.")

	_, err = v.Validate(Condition{MetricKey: "bugs", Operator: OperatorLessThan, ErrorThreshold: "1"}, nil)
	assert.Contains(t, violationsOf(t, err), "Operator LT is not allowed for this metric.")

	_, err = v.Validate(Condition{MetricKey: "bugs", Operator: "BETWEEN", ErrorThreshold: "1"}, nil)
	assert.Contains(t, violationsOf(t, err), "Operator BETWEEN is not allowed for this metric.")

	_, err = v.Validate(Condition{MetricKey: "lines_to_cover", Operator: OperatorEquals, ErrorThreshold: "1"}, nil)
	assert.NoError(t, err, "metrics without direction accept any operator")
}

func TestConditionValidator_Thresholds(t *testing.T) {
	v := NewConditionValidator(BuiltinCatalog())

	_, err := v.Validate(Condition{MetricKey: "bugs", Operator: OperatorGreaterThan}, nil)
	assert.Contains(t, violationsOf(t, err), "At least one threshold (warning, error) must be set.")

	_, err = v.Validate(Condition{MetricKey: "bugs", Operator: OperatorGreaterThan, ErrorThreshold: "abc", WarningThreshold: "x1"}, nil)
	violations := violationsOf(t, err)
	assert.Contains(t, violations, "Invalid value 'abc' for metric 'bugs'")
	assert.Contains(t, violations, "Invalid value 'x1' for metric 'bugs'")

	_, err = v.Validate(Condition{MetricKey: "bugs", Operator: OperatorGreaterThan, WarningThreshold: "3"}, nil)
	assert.NoError(t, err, "warning threshold alone is enough")
}

func TestConditionValidator_Rating(t *testing.T) {
	v := NewConditionValidator(BuiltinCatalog())

	_, err := v.Validate(Condition{MetricKey: "security_rating", Operator: OperatorGreaterThan, ErrorThreshold: "E"}, nil)
	assert.Contains(t, violationsOf(t, err), "There's no worse rating than E (5)")

	_, err = v.Validate(Condition{MetricKey: "security_rating", Operator: OperatorGreaterThan, ErrorThreshold: "6"}, nil)
	assert.Contains(t, violationsOf(t, err), "'6' is not a valid rating")

	_, err = v.Validate(Condition{MetricKey: "security_rating", Operator: OperatorGreaterThan, ErrorThreshold: "Z"}, nil)
	assert.Contains(t, violationsOf(t, err), "'Z' is not a valid rating")

	cond, err := v.Validate(Condition{MetricKey: "security_rating", Operator: OperatorGreaterThan, ErrorThreshold: "A"}, nil)
	require.NoError(t, err)
	assert.Equal(t, KindRating, cond.Kind)
}

func TestConditionValidator_Duplicates(t *testing.T) {
	v := NewConditionValidator(BuiltinCatalog())
	existing := []Condition{
		{MetricKey: "coverage", Operator: OperatorLessThan, ErrorThreshold: "80"},
		{MetricKey: "new_coverage", Operator: OperatorLessThan, ErrorThreshold: "80", OnLeakPeriod: true},
	}

	_, err := v.Validate(Condition{MetricKey: "coverage", Operator: OperatorLessThan, ErrorThreshold: "70"}, existing)
	assert.Contains(t, violationsOf(t, err), "Condition on metric 'coverage' already exists.")

	_, err = v.Validate(Condition{MetricKey: "new_coverage", Operator: OperatorLessThan, ErrorThreshold: "70", OnLeakPeriod: true}, existing)
	assert.Contains(t, violationsOf(t, err), "Condition on metric 'new_coverage' over leak period already exists.")

	_, err = v.Validate(Condition{MetricKey: "coverage", Operator: OperatorLessThan, ErrorThreshold: "70", OnLeakPeriod: true}, existing)
	assert.NoError(t, err, "same metric on the other period is allowed")
}

func TestConditionValidator_AggregatesAllViolations(t *testing.T) {
	v := NewConditionValidator(BuiltinCatalog())

	_, err := v.Validate(Condition{MetricKey: "coverage", Operator: OperatorGreaterThan, ErrorThreshold: "lots"},
		[]Condition{{MetricKey: "coverage", Operator: OperatorLessThan, ErrorThreshold: "1"}})

	assert.True(t, errors.IsCode(err, errors.ErrValidation))
	assert.Len(t, violationsOf(t, err), 3)
}

func TestCatalog_Gateable_ExcludesHiddenAndAlertStatus(t *testing.T) {
	metrics := BuiltinCatalog().Gateable()

	keys := make([]string, 0, len(metrics))
	for _, m := range metrics {
		keys = append(keys, m.Key)
	}
	assert.Contains(t, keys, "new_coverage")
	assert.NotContains(t, keys, MetricAlertStatus)
	assert.NotContains(t, keys, "quality_gate_details")
	assert.NotContains(t, keys, "contains_ai_code")
	assert.IsIncreasing(t, keys)
}
