package qualitygate

import "sort"

// Direction показывает, в какую сторону значение метрики улучшается
type Direction int

const (
	// DirectionWorse чем больше значение, тем хуже
	DirectionWorse  Direction = -1
	DirectionNone   Direction = 0
	// DirectionBetter чем больше значение, тем лучше
	DirectionBetter Direction = 1
)

// Ключи метрик, на которые опирается оценка
const (
	MetricAlertStatus = "alert_status"
	MetricNewLines    = "new_lines"
)

// Метрики, условия по которым смягчаются до OK на маленьком наборе изменений
var smallChangesetMetrics = map[string]struct{}{
	"new_coverage":                 {},
	"new_line_coverage":            {},
	"new_branch_coverage":          {},
	"new_duplicated_lines_density": {},
	"new_duplicated_lines":         {},
	"new_duplicated_blocks":        {},
}

// IsSmallChangesetMetric возвращает true для метрик, чувствительных к размеру набора изменений
func IsSmallChangesetMetric(key string) bool {
	_, ok := smallChangesetMetrics[key]
	return ok
}

// Metric описание метрики
type Metric struct {
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	Kind      ValueKind `json:"type"`
	Direction Direction `json:"direction"`
	Hidden    bool      `json:"hidden"`
}

// AllowsOperator проверяет, допустим ли оператор для направления метрики
func (m Metric) AllowsOperator(op Operator) bool {
	switch m.Direction {
	case DirectionBetter:
		return op == OperatorLessThan
	case DirectionWorse:
		return op == OperatorGreaterThan
	default:
		return true
	}
}

// MetricCatalog источник описаний метрик
type MetricCatalog interface {
	Metric(key string) (Metric, bool)
	// Gateable возвращает метрики, на которые можно ставить условия, в порядке ключей
	Gateable() []Metric
}

// Catalog каталог метрик в памяти
type Catalog map[string]Metric

// NewCatalog создает каталог из списка метрик
func NewCatalog(metrics ...Metric) Catalog {
	c := make(Catalog, len(metrics))
	for _, m := range metrics {
		c[m.Key] = m
	}
	return c
}

// Metric реализует MetricCatalog
func (c Catalog) Metric(key string) (Metric, bool) {
	m, ok := c[key]
	return m, ok
}

// Gateable реализует MetricCatalog
func (c Catalog) Gateable() []Metric {
	result := make([]Metric, 0, len(c))
	for _, m := range c {
		if m.Hidden || !m.Kind.IsGateable() || m.Key == MetricAlertStatus {
			continue
		}
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}

// BuiltinCatalog возвращает встроенные метрики анализа
func BuiltinCatalog() Catalog {
	return NewCatalog(
		Metric{Key: "coverage", Name: "Coverage", Kind: KindFloat, Direction: DirectionBetter},
		Metric{Key: "new_coverage", Name: "Coverage on New Code", Kind: KindFloat, Direction: DirectionBetter},
		Metric{Key: "line_coverage", Name: "Line Coverage", Kind: KindFloat, Direction: DirectionBetter},
		Metric{Key: "new_line_coverage", Name: "Line Coverage on New Code", Kind: KindFloat, Direction: DirectionBetter},
		Metric{Key: "branch_coverage", Name: "Condition Coverage", Kind: KindFloat, Direction: DirectionBetter},
		Metric{Key: "new_branch_coverage", Name: "Condition Coverage on New Code", Kind: KindFloat, Direction: DirectionBetter},
		Metric{Key: "duplicated_lines_density", Name: "Duplicated Lines (%)", Kind: KindFloat, Direction: DirectionWorse},
		Metric{Key: "new_duplicated_lines_density", Name: "Duplicated Lines (%) on New Code", Kind: KindFloat, Direction: DirectionWorse},
		Metric{Key: "duplicated_lines", Name: "Duplicated Lines", Kind: KindInt, Direction: DirectionWorse},
		Metric{Key: "new_duplicated_lines", Name: "Duplicated Lines on New Code", Kind: KindInt, Direction: DirectionWorse},
		Metric{Key: "duplicated_blocks", Name: "Duplicated Blocks", Kind: KindInt, Direction: DirectionWorse},
		Metric{Key: "new_duplicated_blocks", Name: "Duplicated Blocks on New Code", Kind: KindInt, Direction: DirectionWorse},
		Metric{Key: "bugs", Name: "Bugs", Kind: KindInt, Direction: DirectionWorse},
		Metric{Key: "new_bugs", Name: "New Bugs", Kind: KindInt, Direction: DirectionWorse},
		Metric{Key: "vulnerabilities", Name: "Vulnerabilities", Kind: KindInt, Direction: DirectionWorse},
		Metric{Key: "new_vulnerabilities", Name: "New Vulnerabilities", Kind: KindInt, Direction: DirectionWorse},
		Metric{Key: "code_smells", Name: "Code Smells", Kind: KindInt, Direction: DirectionWorse},
		Metric{Key: "new_code_smells", Name: "New Code Smells", Kind: KindInt, Direction: DirectionWorse},
		Metric{Key: "reliability_rating", Name: "Reliability Rating", Kind: KindRating, Direction: DirectionWorse},
		Metric{Key: "new_reliability_rating", Name: "Reliability Rating on New Code", Kind: KindRating, Direction: DirectionWorse},
		Metric{Key: "security_rating", Name: "Security Rating", Kind: KindRating, Direction: DirectionWorse},
		Metric{Key: "new_security_rating", Name: "Security Rating on New Code", Kind: KindRating, Direction: DirectionWorse},
		Metric{Key: "sqale_rating", Name: "Maintainability Rating", Kind: KindRating, Direction: DirectionWorse},
		Metric{Key: "new_maintainability_rating", Name: "Maintainability Rating on New Code", Kind: KindRating, Direction: DirectionWorse},
		Metric{Key: "sqale_index", Name: "Technical Debt", Kind: KindDuration, Direction: DirectionWorse},
		Metric{Key: "new_technical_debt", Name: "Added Technical Debt", Kind: KindDuration, Direction: DirectionWorse},
		Metric{Key: "security_hotspots_reviewed", Name: "Security Hotspots Reviewed", Kind: KindFloat, Direction: DirectionBetter},
		Metric{Key: "new_security_hotspots_reviewed", Name: "Security Hotspots Reviewed on New Code", Kind: KindFloat, Direction: DirectionBetter},
		Metric{Key: "ncloc", Name: "Lines of Code", Kind: KindInt, Direction: DirectionWorse},
		Metric{Key: MetricNewLines, Name: "New Lines", Kind: KindInt, Direction: DirectionWorse},
		Metric{Key: "skipped_tests", Name: "Skipped Unit Tests", Kind: KindInt, Direction: DirectionWorse},
		Metric{Key: "test_errors", Name: "Unit Test Errors", Kind: KindInt, Direction: DirectionWorse},
		Metric{Key: "lines_to_cover", Name: "Lines to Cover", Kind: KindInt, Direction: DirectionNone},
		Metric{Key: MetricAlertStatus, Name: "Quality Gate Status", Kind: KindLevel, Direction: DirectionNone},
		Metric{Key: "quality_gate_details", Name: "Quality Gate Details", Kind: KindString, Direction: DirectionNone, Hidden: true},
		Metric{Key: "new_development_cost", Name: "Development Cost on New Code", Kind: KindString, Direction: DirectionNone, Hidden: true},
		Metric{Key: "contains_ai_code", Name: "Contains AI Code", Kind: KindBool, Direction: DirectionNone},
	)
}
