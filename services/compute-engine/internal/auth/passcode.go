package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// PasscodeChecker проверяет внеполосный пароль администратора.
// Пароль нужен для автоматизации, у которой нет пользовательского токена.
type PasscodeChecker struct {
	hash []byte
}

// NewPasscodeChecker создает проверку по bcrypt-хэшу. Пустой хэш отключает вход по паролю.
func NewPasscodeChecker(hash string) *PasscodeChecker {
	return &PasscodeChecker{hash: []byte(hash)}
}

// Enabled возвращает true, если пароль настроен
func (c *PasscodeChecker) Enabled() bool {
	return len(c.hash) > 0
}

// Check сравнивает пароль с хэшем
func (c *PasscodeChecker) Check(passcode string) bool {
	if !c.Enabled() || passcode == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(c.hash, []byte(passcode)) == nil
}

// HashPasscode возвращает bcrypt-хэш пароля для конфигурации
func HashPasscode(passcode string, cost int) (string, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(passcode), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
