package qualitygate

import (
	"fmt"
	"strings"

	"AnalysisPlatform/pkg/errors"
)

// Violations список нарушений, найденных при проверке условия
type Violations []string

func (v Violations) Error() string {
	return strings.Join(v, " ")
}

// Границы рейтинга: A (1) лучший, E (5) худший
const (
	BestRating  = 1
	WorstRating = 5
)

// ConditionValidator проверяет условия перед сохранением в gate
type ConditionValidator struct {
	catalog MetricCatalog
}

// NewConditionValidator создает ConditionValidator
func NewConditionValidator(catalog MetricCatalog) *ConditionValidator {
	return &ConditionValidator{catalog: catalog}
}

// Validate проверяет условие относительно остальных условий gate.
// existing не должен содержать само изменяемое условие.
// Возвращает условие с нормализованным оператором и типом значения метрики.
// Все нарушения собираются в одну ошибку.
func (v *ConditionValidator) Validate(cond Condition, existing []Condition) (Condition, error) {
	metric, ok := v.catalog.Metric(cond.MetricKey)
	if !ok {
		return cond, errors.New(errors.ErrNotFound, fmt.Sprintf("There is no metric with key=%s", cond.MetricKey))
	}
	cond.Kind = metric.Kind

	var violations Violations

	if metric.Hidden || !metric.Kind.IsGateable() || metric.Key == MetricAlertStatus {
		violations = append(violations, fmt.Sprintf("Metric '%s' cannot be used to define a condition.", metric.Key))
	}

	op, ok := ParseOperator(string(cond.Operator))
	switch {
	case !ok:
		violations = append(violations, fmt.Sprintf("Operator %s is not allowed for this metric.", cond.Operator))
	case !metric.AllowsOperator(op):
		violations = append(violations, fmt.Sprintf("Operator %s is not allowed for this metric.", op.ShortName()))
	default:
		cond.Operator = op
	}

	if cond.ErrorThreshold == "" && cond.WarningThreshold == "" {
		violations = append(violations, "At least one threshold (warning, error) must be set.")
	}
	for _, threshold := range []string{cond.ErrorThreshold, cond.WarningThreshold} {
		if threshold == "" {
			continue
		}
		violations = append(violations, checkThreshold(metric, cond.Operator, threshold)...)
	}

	for _, other := range existing {
		if !other.SameTarget(cond) {
			continue
		}
		if cond.OnLeakPeriod {
			violations = append(violations, fmt.Sprintf("Condition on metric '%s' over leak period already exists.", metric.Key))
		} else {
			violations = append(violations, fmt.Sprintf("Condition on metric '%s' already exists.", metric.Key))
		}
		break
	}

	if len(violations) > 0 {
		return cond, errors.Wrap(violations, errors.ErrValidation, "invalid condition").
			WithDetails(violations.Error())
	}
	return cond, nil
}

func checkThreshold(metric Metric, op Operator, threshold string) []string {
	if metric.Kind != KindRating {
		if _, err := metric.Kind.Parse(threshold); err != nil {
			return []string{invalidValue(threshold, metric.Key)}
		}
		return nil
	}

	value, err := metric.Kind.Parse(threshold)
	if err != nil || value.number < BestRating || value.number > WorstRating {
		return []string{fmt.Sprintf("'%s' is not a valid rating", threshold)}
	}
	if op == OperatorGreaterThan && value.number == WorstRating {
		return []string{fmt.Sprintf("There's no worse rating than E (%d)", WorstRating)}
	}
	return nil
}

func invalidValue(threshold, metricKey string) string {
	return fmt.Sprintf("Invalid value '%s' for metric '%s'", threshold, metricKey)
}
