package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims данные пользователя в JWT токене
type TokenClaims struct {
	UserID      string   `json:"user_id"`
	IsAdmin     bool     `json:"is_admin"`
	Permissions []string `json:"permissions"` // admin:<uuid компонента>
	jwt.RegisteredClaims
}

// TokenManager выпускает и проверяет токены, подписанные HS256
type TokenManager struct {
	secretKey string
	tokenTTL  time.Duration
}

// NewTokenManager создает TokenManager
func NewTokenManager(secretKey string, tokenTTL time.Duration) *TokenManager {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &TokenManager{secretKey: secretKey, tokenTTL: tokenTTL}
}

// Generate выпускает токен. Используется CLI и тестами.
func (m *TokenManager) Generate(userID string, isAdmin bool, permissions []string) (string, error) {
	now := time.Now().UTC()
	claims := &TokenClaims{
		UserID:      userID,
		IsAdmin:     isAdmin,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.secretKey))
}

// Validate проверяет подпись и срок действия токена
func (m *TokenManager) Validate(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.secretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("token has no user")
	}
	return claims, nil
}
