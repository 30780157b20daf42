package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/pkg/logger"
)

// PasscodeHeader заголовок с внеполосным паролем
const PasscodeHeader = "X-Sonar-Passcode"

// Identity вызывающая сторона запроса
type Identity struct {
	UserUUID    string
	IsAdmin     bool
	Permissions []string

	// ViaPasscode запрос подтвержден паролем, а не пользовательским токеном
	ViaPasscode bool
}

// ComponentPermission право администрирования компонента
func ComponentPermission(componentUUID string) string {
	return "admin:" + componentUUID
}

// CanAdminister проверяет права на компонент. Системный администратор может все.
func (i *Identity) CanAdminister(componentUUID string) bool {
	if i == nil {
		return false
	}
	if i.IsAdmin {
		return true
	}
	want := ComponentPermission(componentUUID)
	for _, p := range i.Permissions {
		if p == want {
			return true
		}
	}
	return false
}

type identityKey struct{}

// WithIdentity сохраняет Identity в контексте
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// FromContext возвращает Identity запроса или nil для анонимного вызова
func FromContext(ctx context.Context) *Identity {
	identity, _ := ctx.Value(identityKey{}).(*Identity)
	return identity
}

// RequireAuthenticated требует любую Identity
func RequireAuthenticated(ctx context.Context) (*Identity, error) {
	identity := FromContext(ctx)
	if identity == nil {
		return nil, errors.New(errors.ErrUnauthorized, "Authentication is required").WithContext(ctx)
	}
	return identity, nil
}

// RequireSystemAdmin требует права системного администратора или пароль
func RequireSystemAdmin(ctx context.Context) error {
	identity, err := RequireAuthenticated(ctx)
	if err != nil {
		return err
	}
	if !identity.IsAdmin {
		return errors.New(errors.ErrForbidden, "Insufficient privileges").WithContext(ctx)
	}
	return nil
}

// RequireComponentAdmin требует права администратора компонента.
// Задачи без компонента администрирует только системный администратор.
func RequireComponentAdmin(ctx context.Context, componentUUID string) error {
	if componentUUID == "" {
		return RequireSystemAdmin(ctx)
	}
	identity, err := RequireAuthenticated(ctx)
	if err != nil {
		return err
	}
	if !identity.CanAdminister(componentUUID) {
		return errors.New(errors.ErrForbidden, "Insufficient privileges").WithContext(ctx)
	}
	return nil
}

// Authenticator определяет Identity по заголовкам запроса
type Authenticator struct {
	tokens   *TokenManager
	passcode *PasscodeChecker
}

// NewAuthenticator создает Authenticator
func NewAuthenticator(tokens *TokenManager, passcode *PasscodeChecker) *Authenticator {
	return &Authenticator{tokens: tokens, passcode: passcode}
}

// Authenticate возвращает Identity или nil для анонимного запроса.
// Неверный токен или пароль дает UNAUTHORIZED.
func (a *Authenticator) Authenticate(r *http.Request) (*Identity, error) {
	if passcode := r.Header.Get(PasscodeHeader); passcode != "" {
		if a.passcode == nil || !a.passcode.Check(passcode) {
			return nil, errors.New(errors.ErrUnauthorized, "Invalid passcode")
		}
		return &Identity{IsAdmin: true, ViaPasscode: true}, nil
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, nil
	}
	if !strings.HasPrefix(header, "Bearer ") || a.tokens == nil {
		return nil, errors.New(errors.ErrUnauthorized, "Unsupported authorization type")
	}

	claims, err := a.tokens.Validate(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrUnauthorized, "failed to validate token")
	}
	return &Identity{
		UserUUID:    claims.UserID,
		IsAdmin:     claims.IsAdmin,
		Permissions: claims.Permissions,
	}, nil
}

// Middleware сохраняет Identity в контексте запроса.
// Анонимные запросы пропускаются, права проверяются обработчиками.
func Middleware(authenticator *Authenticator, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := authenticator.Authenticate(r)
			if err != nil {
				log.Warn("Authentication failed",
					logger.String("path", r.URL.Path),
					logger.String("remote_addr", r.RemoteAddr),
					logger.Error(err),
				)
				errors.WriteJSON(w, err)
				return
			}
			if identity != nil {
				r = r.WithContext(WithIdentity(r.Context(), identity))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// String описание Identity для логов
func (i *Identity) String() string {
	if i == nil {
		return "anonymous"
	}
	if i.ViaPasscode {
		return "passcode"
	}
	return fmt.Sprintf("user:%s", i.UserUUID)
}
