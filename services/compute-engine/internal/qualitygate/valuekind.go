package qualitygate

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueKind тип значения метрики. Определяет разбор порогов и сравнение с измерением.
type ValueKind string

const (
	KindBool     ValueKind = "BOOL"
	KindInt      ValueKind = "INT"
	KindFloat    ValueKind = "FLOAT"
	KindDuration ValueKind = "DURATION"
	KindRating   ValueKind = "RATING"
	KindLevel    ValueKind = "LEVEL"
	KindString   ValueKind = "STRING"
)

// ParseValueKind возвращает тип по имени
func ParseValueKind(name string) (ValueKind, bool) {
	switch k := ValueKind(strings.ToUpper(name)); k {
	case KindBool, KindInt, KindFloat, KindDuration, KindRating, KindLevel, KindString:
		return k, true
	default:
		return "", false
	}
}

// IsNumeric возвращает true для типов с числовым представлением
func (k ValueKind) IsNumeric() bool {
	switch k {
	case KindBool, KindInt, KindFloat, KindDuration, KindRating:
		return true
	default:
		return false
	}
}

// IsGateable возвращает true, если по метрике такого типа можно задать условие
func (k ValueKind) IsGateable() bool {
	switch k {
	case KindInt, KindFloat, KindDuration, KindRating, KindLevel:
		return true
	default:
		return false
	}
}

// Value разобранное значение порога или измерения
type Value struct {
	kind   ValueKind
	number float64
	text   string
}

// Kind возвращает тип значения
func (v Value) Kind() ValueKind {
	return v.kind
}

// Compare сравнивает два значения одного типа
func (v Value) Compare(other Value) int {
	if v.kind.IsNumeric() {
		return cmp.Compare(v.number, other.number)
	}
	return strings.Compare(v.text, other.text)
}

// String возвращает значение в том виде, в котором оно показывается пользователю
func (v Value) String() string {
	switch v.kind {
	case KindFloat:
		return strconv.FormatFloat(v.number, 'f', -1, 64)
	case KindBool, KindInt, KindDuration, KindRating:
		return strconv.FormatInt(int64(v.number), 10)
	default:
		return v.text
	}
}

// Parse разбирает строковый порог.
// Целочисленные типы принимают дробную запись и отбрасывают дробную часть ("10.9" это 10).
func (k ValueKind) Parse(raw string) (Value, error) {
	raw = strings.TrimSpace(raw)
	switch k {
	case KindBool:
		if b, err := strconv.ParseBool(raw); err == nil && !isDigits(raw) {
			return k.numeric(boolToFloat(b)), nil
		}
		n, err := parseTruncated(raw)
		if err != nil {
			return Value{}, err
		}
		return k.numeric(n), nil
	case KindInt:
		n, err := parseTruncated(raw)
		if err != nil {
			return Value{}, err
		}
		return k.numeric(n), nil
	case KindRating:
		if n, ok := ratingLetter(raw); ok {
			return k.numeric(float64(n)), nil
		}
		n, err := parseTruncated(raw)
		if err != nil {
			return Value{}, err
		}
		return k.numeric(n), nil
	case KindDuration:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("not a whole number: %q", raw)
		}
		return k.numeric(float64(n)), nil
	case KindFloat:
		n, err := parseFinite(raw)
		if err != nil {
			return Value{}, err
		}
		return k.numeric(n), nil
	case KindLevel, KindString:
		if raw == "" {
			return Value{}, fmt.Errorf("empty value")
		}
		return Value{kind: k, text: raw}, nil
	default:
		return Value{}, fmt.Errorf("unsupported value kind: %q", k)
	}
}

// FromMeasure извлекает значение из измерения.
// onLeak выбирает значение за новый период; у текстовых типов его нет.
func (k ValueKind) FromMeasure(m Measure, onLeak bool) (Value, bool) {
	if !k.IsNumeric() {
		if onLeak || m.Data == nil {
			return Value{}, false
		}
		return Value{kind: k, text: *m.Data}, true
	}

	src := m.Value
	if onLeak {
		src = m.LeakValue
	}
	if src == nil || math.IsNaN(*src) {
		return Value{}, false
	}
	if k == KindFloat {
		return k.numeric(*src), true
	}
	return k.numeric(math.Trunc(*src)), true
}

func (k ValueKind) numeric(n float64) Value {
	return Value{kind: k, number: n}
}

func parseFinite(raw string) (float64, error) {
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("not a number: %q", raw)
	}
	return n, nil
}

func parseTruncated(raw string) (float64, error) {
	n, err := parseFinite(raw)
	if err != nil {
		return 0, err
	}
	n = math.Trunc(n)
	if n > math.MaxInt64 || n < math.MinInt64 {
		return 0, fmt.Errorf("out of range: %q", raw)
	}
	return n, nil
}

func ratingLetter(raw string) (int, bool) {
	if len(raw) != 1 {
		return 0, false
	}
	c := raw[0]
	if c >= 'a' && c <= 'e' {
		c -= 'a' - 'A'
	}
	if c < 'A' || c > 'E' {
		return 0, false
	}
	return int(c-'A') + 1, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
