package qualitygate

import (
	"sort"
	"strings"
)

// Operator оператор сравнения измерения с порогом
type Operator string

const (
	OperatorEquals      Operator = "EQUALS"
	OperatorNotEquals   Operator = "NOT_EQUALS"
	OperatorGreaterThan Operator = "GREATER_THAN"
	OperatorLessThan    Operator = "LESS_THAN"
)

var shortOperators = map[string]Operator{
	"EQ": OperatorEquals,
	"NE": OperatorNotEquals,
	"GT": OperatorGreaterThan,
	"LT": OperatorLessThan,
}

// ParseOperator принимает полное ("GREATER_THAN") и короткое ("GT") имя
func ParseOperator(name string) (Operator, bool) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if op, ok := shortOperators[upper]; ok {
		return op, true
	}
	switch op := Operator(upper); op {
	case OperatorEquals, OperatorNotEquals, OperatorGreaterThan, OperatorLessThan:
		return op, true
	default:
		return "", false
	}
}

// ShortName возвращает короткое имя оператора
func (o Operator) ShortName() string {
	for short, op := range shortOperators {
		if op == o {
			return short
		}
	}
	return string(o)
}

// Reached проверяет, достигнут ли порог, по результату сравнения измерения с порогом
func (o Operator) Reached(comparison int) bool {
	switch o {
	case OperatorEquals:
		return comparison == 0
	case OperatorNotEquals:
		return comparison != 0
	case OperatorGreaterThan:
		return comparison > 0
	case OperatorLessThan:
		return comparison < 0
	default:
		return false
	}
}

// EvaluationStatus результат оценки условия или всего quality gate
type EvaluationStatus string

const (
	StatusOK    EvaluationStatus = "OK"
	StatusWarn  EvaluationStatus = "WARN"
	StatusError EvaluationStatus = "ERROR"
)

func (s EvaluationStatus) rank() int {
	switch s {
	case StatusError:
		return 2
	case StatusWarn:
		return 1
	default:
		return 0
	}
}

// WorseThan возвращает true, если s строго хуже other
func (s EvaluationStatus) WorseThan(other EvaluationStatus) bool {
	return s.rank() > other.rank()
}

// Worst возвращает худший из статусов; для пустого списка это OK
func Worst(statuses ...EvaluationStatus) EvaluationStatus {
	worst := StatusOK
	for _, s := range statuses {
		if s.WorseThan(worst) {
			worst = s
		}
	}
	return worst
}

// Condition условие quality gate. Пустой порог означает его отсутствие.
// Kind фиксируется при создании условия по типу метрики.
type Condition struct {
	ID               int64     `json:"id,omitempty"`
	MetricKey        string    `json:"metric"`
	Operator         Operator  `json:"op"`
	WarningThreshold string    `json:"warning,omitempty"`
	ErrorThreshold   string    `json:"error,omitempty"`
	OnLeakPeriod     bool      `json:"onLeakPeriod"`
	Kind             ValueKind `json:"kind,omitempty"`
}

// SameTarget проверяет, что условия относятся к одной метрике и одному периоду
func (c Condition) SameTarget(other Condition) bool {
	return c.MetricKey == other.MetricKey && c.OnLeakPeriod == other.OnLeakPeriod
}

// QualityGate именованный набор условий
type QualityGate struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	IsDefault  bool        `json:"isDefault"`
	Conditions []Condition `json:"conditions"`
}

// Measure измерение метрики для анализа.
// Value и LeakValue заполняются для числовых метрик, Data для текстовых.
type Measure struct {
	Value     *float64 `json:"value,omitempty"`
	LeakValue *float64 `json:"leak,omitempty"`
	Data      *string  `json:"data,omitempty"`
}

// NumericMeasure создает измерение с абсолютным значением
func NumericMeasure(value float64) Measure {
	return Measure{Value: &value}
}

// LeakMeasure создает измерение только со значением за новый период
func LeakMeasure(value float64) Measure {
	return Measure{LeakValue: &value}
}

// TextMeasure создает текстовое измерение
func TextMeasure(data string) Measure {
	return Measure{Data: &data}
}

// WithLeak возвращает копию измерения со значением за новый период
func (m Measure) WithLeak(value float64) Measure {
	m.LeakValue = &value
	return m
}

// MeasureLookup возвращает измерение по ключу метрики
type MeasureLookup interface {
	Measure(metricKey string) (Measure, bool)
}

// Measures измерения анализа по ключу метрики
type Measures map[string]Measure

// Measure реализует MeasureLookup
func (m Measures) Measure(metricKey string) (Measure, bool) {
	measure, ok := m[metricKey]
	return measure, ok
}

// EvaluatedCondition результат оценки одного условия
type EvaluatedCondition struct {
	Condition Condition        `json:"condition"`
	Status    EvaluationStatus `json:"status"`

	// Value отсутствует, если у анализа нет значения метрики
	Value *string `json:"actualValue,omitempty"`
}

// EvaluatedQualityGate результат оценки quality gate
type EvaluatedQualityGate struct {
	Gate       QualityGate          `json:"qualityGate"`
	Status     EvaluationStatus     `json:"status"`
	Conditions []EvaluatedCondition `json:"conditions"`

	// IgnoredConditionsOnSmallChangeset выставляется, если хотя бы одно условие было смягчено до OK
	IgnoredConditionsOnSmallChangeset bool `json:"ignoredConditions"`
}

// ByMetric сводит результаты к одному на метрику: побеждает худший статус,
// при равенстве результат по новому периоду.
func (e *EvaluatedQualityGate) ByMetric() map[string]EvaluatedCondition {
	result := make(map[string]EvaluatedCondition, len(e.Conditions))
	for _, c := range e.Conditions {
		current, ok := result[c.Condition.MetricKey]
		switch {
		case !ok:
			result[c.Condition.MetricKey] = c
		case c.Status.WorseThan(current.Status):
			result[c.Condition.MetricKey] = c
		case c.Status == current.Status && c.Condition.OnLeakPeriod && !current.Condition.OnLeakPeriod:
			result[c.Condition.MetricKey] = c
		}
	}
	return result
}

// MetricConditions результаты ByMetric, упорядоченные по ключу метрики
func (e *EvaluatedQualityGate) MetricConditions() []EvaluatedCondition {
	byMetric := e.ByMetric()
	result := make([]EvaluatedCondition, 0, len(byMetric))
	for _, c := range byMetric {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Condition.MetricKey < result[j].Condition.MetricKey
	})
	return result
}
