package validation

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"AnalysisPlatform/pkg/errors"
)

func TestValidator_ValidateRequiredFields(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateRequiredFields(map[string]string{"projectKey": "my-app"}))

	err := v.ValidateRequiredFields(map[string]string{"projectKey": "", "type": " ", "name": "ok"})
	assert.True(t, errors.IsCode(err, errors.ErrValidation))
	assert.Contains(t, err.Error(), "projectKey is required")
	assert.Equal(t, "missing fields: projectKey, type", err.(*errors.Error).Details)
}

func TestValidator_ValidateComponentKey(t *testing.T) {
	v := NewValidator()

	for _, key := range []string{"my-app", "org.example:core", "a_1"} {
		assert.NoError(t, v.ValidateComponentKey(key), key)
	}
	for _, key := range []string{"", "12345", "has space", "bad/slash", strings.Repeat("k", MaxComponentKeyLength+1)} {
		err := v.ValidateComponentKey(key)
		assert.True(t, errors.IsCode(err, errors.ErrValidation), key)
	}
}

func TestValidator_ValidateEnum(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateEnum("REPORT", []string{"REPORT", "PROJECT_EXPORT"}, "type"))
	err := v.ValidateEnum("PING", []string{"REPORT", "PROJECT_EXPORT"}, "type")
	assert.EqualError(t, err, "Value of parameter 'type' (PING) must be one of: REPORT, PROJECT_EXPORT")
}

func TestValidator_ValidateStringLength(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateStringLength("gate", "name", 1, 100))
	assert.Error(t, v.ValidateStringLength("", "name", 1, 100))
	assert.Error(t, v.ValidateStringLength("toolong", "name", 1, 3))
	assert.NoError(t, v.ValidateStringLength("unbounded", "name", 0, 0))
}

func TestValidator_ValidateUUID(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateUUID(uuid.NewString(), "taskId"))
	assert.Error(t, v.ValidateUUID("", "taskId"))
	assert.Error(t, v.ValidateUUID("not-a-uuid", "taskId"))
}
