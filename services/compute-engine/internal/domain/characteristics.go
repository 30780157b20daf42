package domain

import "sort"

// Ключи характеристик задачи
const (
	CharacteristicBranch                     = "branch"
	CharacteristicBranchType                 = "branchType"
	CharacteristicPullRequest                = "pullRequest"
	CharacteristicDevOpsPlatformURL          = "devOpsPlatformUrl"
	CharacteristicDevOpsPlatformProjectIdent = "devOpsPlatformProjectIdentifier"
)

// Порядок ключей определяет порядок характеристик у задачи
var allowedCharacteristics = []string{
	CharacteristicBranch,
	CharacteristicBranchType,
	CharacteristicPullRequest,
	CharacteristicDevOpsPlatformURL,
	CharacteristicDevOpsPlatformProjectIdent,
}

// Characteristic пара ключ-значение, прикрепленная к задаче
type Characteristic struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Characteristics упорядоченный набор характеристик
type Characteristics []Characteristic

// IsAllowedCharacteristic проверяет, входит ли ключ в список разрешенных
func IsAllowedCharacteristic(key string) bool {
	for _, allowed := range allowedCharacteristics {
		if allowed == key {
			return true
		}
	}
	return false
}

// NewCharacteristics оставляет только разрешенные ключи с непустыми значениями.
// Неизвестные ключи молча отбрасываются.
func NewCharacteristics(raw map[string]string) Characteristics {
	result := make(Characteristics, 0, len(raw))
	for _, key := range allowedCharacteristics {
		if value, ok := raw[key]; ok && value != "" {
			result = append(result, Characteristic{Key: key, Value: value})
		}
	}
	return result
}

// FromPairs восстанавливает набор из пар в заданном порядке
func FromPairs(pairs []Characteristic) Characteristics {
	result := make(Characteristics, 0, len(pairs))
	result = append(result, pairs...)
	return result
}

// Get возвращает значение характеристики
func (c Characteristics) Get(key string) (string, bool) {
	for _, ch := range c {
		if ch.Key == key {
			return ch.Value, true
		}
	}
	return "", false
}

// Map возвращает характеристики в виде map
func (c Characteristics) Map() map[string]string {
	m := make(map[string]string, len(c))
	for _, ch := range c {
		m[ch.Key] = ch.Value
	}
	return m
}

// Keys возвращает отсортированный список ключей
func (c Characteristics) Keys() []string {
	keys := make([]string, 0, len(c))
	for _, ch := range c {
		keys = append(keys, ch.Key)
	}
	sort.Strings(keys)
	return keys
}

// Branch возвращает имя ветки, если задача относится к ветке
func (c Characteristics) Branch() (string, bool) {
	return c.Get(CharacteristicBranch)
}

// PullRequest возвращает ключ pull request
func (c Characteristics) PullRequest() (string, bool) {
	return c.Get(CharacteristicPullRequest)
}
