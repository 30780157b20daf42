package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"AnalysisPlatform/pkg/errors"
)

// MaxComponentKeyLength ограничивает длину ключа проекта
const MaxComponentKeyLength = 400

var componentKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9_\-.:]+$`)
var digitsOnly = regexp.MustCompile(`^[0-9]+$`)

// Validator предоставляет общие функции валидации входных данных.
// Все методы возвращают *errors.Error с кодом ErrValidation.
type Validator struct{}

// NewValidator создает новый Validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateRequiredFields проверяет, что все поля заполнены.
// Отсутствующие поля перечисляются в деталях в алфавитном порядке.
func (v *Validator) ValidateRequiredFields(fields map[string]string) error {
	var missing []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return errors.New(errors.ErrValidation, fmt.Sprintf("%s is required", missing[0])).
		WithDetails("missing fields: " + strings.Join(missing, ", "))
}

// ValidateComponentKey проверяет ключ проекта.
// Ключ состоит из букв, цифр и символов _-.: и содержит хотя бы один нецифровой символ.
func (v *Validator) ValidateComponentKey(key string) error {
	if key == "" {
		return errors.New(errors.ErrValidation, "project key is required")
	}
	if len(key) > MaxComponentKeyLength {
		return errors.New(errors.ErrValidation,
			fmt.Sprintf("project key is longer than %d characters", MaxComponentKeyLength))
	}
	if !componentKeyPattern.MatchString(key) || digitsOnly.MatchString(key) {
		return errors.New(errors.ErrValidation, fmt.Sprintf("Malformed key for project: '%s'", key)).
			WithDetails("allowed characters are alphanumeric, '-', '_', '.' and ':', with at least one non-digit")
	}
	return nil
}

// ValidateEnum проверяет, что значение входит в список допустимых
func (v *Validator) ValidateEnum(value string, allowedValues []string, fieldName string) error {
	for _, allowed := range allowedValues {
		if value == allowed {
			return nil
		}
	}
	return errors.New(errors.ErrValidation,
		fmt.Sprintf("Value of parameter '%s' (%s) must be one of: %s", fieldName, value, strings.Join(allowedValues, ", ")))
}

// ValidateStringLength проверяет длину строки
func (v *Validator) ValidateStringLength(value, fieldName string, min, max int) error {
	length := len([]rune(value))
	if length < min {
		return errors.New(errors.ErrValidation, fmt.Sprintf("%s must be at least %d characters", fieldName, min))
	}
	if max > 0 && length > max {
		return errors.New(errors.ErrValidation, fmt.Sprintf("%s must be at most %d characters", fieldName, max))
	}
	return nil
}

// ValidateUUID проверяет формат UUID
func (v *Validator) ValidateUUID(value string, fieldName string) error {
	if value == "" {
		return errors.New(errors.ErrValidation, fmt.Sprintf("%s is required", fieldName))
	}
	if _, err := uuid.Parse(value); err != nil {
		return errors.New(errors.ErrValidation, fmt.Sprintf("%s must be a valid UUID", fieldName))
	}
	return nil
}
