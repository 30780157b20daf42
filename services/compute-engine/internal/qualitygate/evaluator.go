package qualitygate

import (
	"fmt"

	"AnalysisPlatform/pkg/errors"
)

// EvaluatorConfig настройки оценки
type EvaluatorConfig struct {
	// IgnoreSmallChanges включает смягчение условий на маленьком наборе изменений
	IgnoreSmallChanges bool
	// SmallChangesetLines порог new_lines, ниже которого набор изменений считается маленьким
	SmallChangesetLines int
}

// DefaultEvaluatorConfig возвращает настройки по умолчанию
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{IgnoreSmallChanges: true, SmallChangesetLines: 20}
}

// Evaluator оценивает quality gate по измерениям анализа.
// Оценка чистая: не обращается к хранилищу и не имеет побочных эффектов.
type Evaluator struct {
	config EvaluatorConfig
}

// NewEvaluator создает Evaluator
func NewEvaluator(config EvaluatorConfig) *Evaluator {
	return &Evaluator{config: config}
}

type compiledCondition struct {
	condition Condition
	errorAt   *Value
	warningAt *Value
}

// Evaluate оценивает все условия gate.
// Некорректный порог считается ошибкой конфигурации и возвращается до оценки любого условия.
func (e *Evaluator) Evaluate(gate QualityGate, measures MeasureLookup) (*EvaluatedQualityGate, error) {
	compiled, err := compile(gate.Conditions)
	if err != nil {
		return nil, err
	}

	smallChangeset := e.isSmallChangeset(measures)

	result := &EvaluatedQualityGate{
		Gate:       gate,
		Conditions: make([]EvaluatedCondition, 0, len(compiled)),
	}
	statuses := make([]EvaluationStatus, 0, len(compiled))

	for _, c := range compiled {
		evaluated := c.evaluate(measures)
		if smallChangeset && evaluated.Status != StatusOK && IsSmallChangesetMetric(c.condition.MetricKey) {
			evaluated.Status = StatusOK
			result.IgnoredConditionsOnSmallChangeset = true
		}
		result.Conditions = append(result.Conditions, evaluated)
		statuses = append(statuses, evaluated.Status)
	}

	result.Status = Worst(statuses...)
	return result, nil
}

// EvaluateCondition оценивает одно условие без учета размера набора изменений
func EvaluateCondition(condition Condition, measures MeasureLookup) (EvaluatedCondition, error) {
	compiled, err := compile([]Condition{condition})
	if err != nil {
		return EvaluatedCondition{}, err
	}
	return compiled[0].evaluate(measures), nil
}

func (e *Evaluator) isSmallChangeset(measures MeasureLookup) bool {
	if !e.config.IgnoreSmallChanges {
		return false
	}
	m, ok := measures.Measure(MetricNewLines)
	if !ok {
		return false
	}
	value := m.LeakValue
	if value == nil {
		value = m.Value
	}
	return value != nil && *value < float64(e.config.SmallChangesetLines)
}

func compile(conditions []Condition) ([]compiledCondition, error) {
	var violations Violations
	compiled := make([]compiledCondition, 0, len(conditions))

	for _, cond := range conditions {
		c := compiledCondition{condition: cond}
		if !cond.Kind.IsGateable() {
			violations = append(violations, fmt.Sprintf("Metric '%s' cannot be used to define a condition.", cond.MetricKey))
			continue
		}
		if cond.ErrorThreshold != "" {
			v, err := cond.Kind.Parse(cond.ErrorThreshold)
			if err != nil {
				violations = append(violations, invalidValue(cond.ErrorThreshold, cond.MetricKey))
			} else {
				c.errorAt = &v
			}
		}
		if cond.WarningThreshold != "" {
			v, err := cond.Kind.Parse(cond.WarningThreshold)
			if err != nil {
				violations = append(violations, invalidValue(cond.WarningThreshold, cond.MetricKey))
			} else {
				c.warningAt = &v
			}
		}
		compiled = append(compiled, c)
	}

	if len(violations) > 0 {
		return nil, errors.Wrap(violations, errors.ErrValidation, "quality gate is misconfigured").
			WithDetails(violations.Error())
	}
	return compiled, nil
}

// evaluate проверяет сначала порог ошибки, затем порог предупреждения
func (c compiledCondition) evaluate(measures MeasureLookup) EvaluatedCondition {
	result := EvaluatedCondition{Condition: c.condition, Status: StatusOK}

	m, ok := measures.Measure(c.condition.MetricKey)
	if !ok {
		return result
	}
	value, ok := c.condition.Kind.FromMeasure(m, c.condition.OnLeakPeriod)
	if !ok {
		return result
	}

	observed := value.String()
	result.Value = &observed

	switch {
	case c.errorAt != nil && c.condition.Operator.Reached(value.Compare(*c.errorAt)):
		result.Status = StatusError
	case c.warningAt != nil && c.condition.Operator.Reached(value.Compare(*c.warningAt)):
		result.Status = StatusWarn
	}
	return result
}
