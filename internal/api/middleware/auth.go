// auth.go — JWT middleware аутентификации персонала Film Rental.
// Основные токены — HS256, выпускаются самим сервисом (POST /api/login).
// Опционально принимаются RS256-токены внешнего IdP с проверкой через JWKS.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/filmrental/internal/api/errors"
	"github.com/bigkaa/filmrental/internal/domain/model"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyClaims — извлечённые claims в контексте запроса.
	ContextKeyClaims contextKey = "jwt_claims"
)

// TokenClaims — claims токенов Film Rental.
// Используются и при выпуске (service.AuthService), и при проверке.
type TokenClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string `json:"preferred_username"`
	Name              string `json:"name,omitempty"`
	Role              string `json:"role,omitempty"`
	// RealmAccess — роли внешнего IdP (Keycloak-совместимый формат).
	RealmAccess *realmAccess `json:"realm_access,omitempty"`
}

type realmAccess struct {
	Roles []string `json:"roles"`
}

// AuthClaims — claims аутентифицированного субъекта в контексте запроса.
type AuthClaims struct {
	// Subject — sub из JWT (ID пользователя).
	Subject           string
	PreferredUsername string
	Name              string
	// Role — admin или staff.
	Role string
	// External — токен выпущен внешним IdP (RS256 через JWKS).
	External bool
}

// HasAnyRole проверяет, совпадает ли роль с одной из указанных.
func (c *AuthClaims) HasAnyRole(roles ...string) bool {
	return slices.Contains(roles, c.Role)
}

// JWTAuth — middleware JWT-аутентификации.
type JWTAuth struct {
	secret    []byte
	issuer    string
	jwks      keyfunc.Keyfunc
	jwtLeeway time.Duration
	logger    *slog.Logger
}

// NewJWTAuth создаёт JWT middleware.
// secret — HS256-секрет собственных токенов.
// issuer — ожидаемый issuer собственных токенов.
// jwksURL — JWKS внешнего IdP (пусто — RS256-токены не принимаются).
// jwksClientTimeout — таймаут HTTP-клиента JWKS (FR_JWKS_CLIENT_TIMEOUT).
// jwksRefreshInterval — интервал обновления JWKS-ключей (FR_JWKS_REFRESH_INTERVAL).
// jwtLeeway — допустимое отклонение времени при проверке JWT (FR_JWT_LEEWAY).
func NewJWTAuth(
	secret string,
	issuer string,
	jwksURL string,
	jwksClientTimeout time.Duration,
	jwksRefreshInterval time.Duration,
	jwtLeeway time.Duration,
	logger *slog.Logger,
) (*JWTAuth, error) {
	var kf keyfunc.Keyfunc
	if jwksURL != "" {
		// NoErrorReturnFirstHTTPReq — стартуем даже если IdP ещё недоступен.
		storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
			Client:                    &http.Client{Timeout: jwksClientTimeout},
			NoErrorReturnFirstHTTPReq: true,
			RefreshInterval:           jwksRefreshInterval,
			RefreshErrorHandler: func(_ context.Context, err error) {
				logger.Error("Ошибка обновления JWKS",
					slog.String("error", err.Error()),
					slog.String("url", jwksURL),
				)
			},
		})
		if err != nil {
			return nil, fmt.Errorf("создание JWKS storage: %w", err)
		}

		kf, err = keyfunc.New(keyfunc.Options{Storage: storage})
		if err != nil {
			return nil, fmt.Errorf("создание keyfunc: %w", err)
		}
	}

	return NewJWTAuthWithKeyfunc(secret, issuer, kf, jwtLeeway, logger), nil
}

// NewJWTAuthWithKeyfunc создаёт JWT middleware с предоставленной keyfunc.
// kf может быть nil. Используется в тестах для подстановки mock JWKS.
func NewJWTAuthWithKeyfunc(
	secret string,
	issuer string,
	kf keyfunc.Keyfunc,
	jwtLeeway time.Duration,
	logger *slog.Logger,
) *JWTAuth {
	return &JWTAuth{
		secret:    []byte(secret),
		issuer:    issuer,
		jwks:      kf,
		jwtLeeway: jwtLeeway,
		logger:    logger.With(slog.String("component", "jwt_auth")),
	}
}

// Middleware возвращает HTTP middleware, требующий валидный Bearer token.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, msg := j.authenticate(r)
			if claims == nil {
				apierrors.Unauthorized(w, msg)
				return
			}
			ctx := withClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authenticate извлекает и проверяет токен.
// При ошибке возвращает nil и сообщение для клиента.
func (j *JWTAuth) authenticate(r *http.Request) (*AuthClaims, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, "Отсутствует заголовок Authorization"
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, "Неверный формат Authorization: ожидается Bearer <token>"
	}

	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		return nil, "Пустой Bearer token"
	}

	claims, err := j.Parse(r.Context(), tokenString)
	if err != nil {
		j.logger.Debug("JWT валидация не пройдена",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr),
		)
		return nil, "Невалидный или просроченный токен"
	}
	return claims, ""
}

// Parse проверяет подпись, срок действия и issuer токена.
func (j *JWTAuth) Parse(ctx context.Context, tokenString string) (*AuthClaims, error) {
	methods := []string{jwt.SigningMethodHS256.Alg()}
	if j.jwks != nil {
		methods = append(methods, jwt.SigningMethodRS256.Alg())
	}

	raw := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, raw, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() == jwt.SigningMethodHS256.Alg() {
			return j.secret, nil
		}
		return j.jwks.KeyfuncCtx(ctx)(t)
	},
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(j.jwtLeeway),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("невалидный токен")
	}

	external := token.Method.Alg() != jwt.SigningMethodHS256.Alg()
	if !external && j.issuer != "" && raw.Issuer != j.issuer {
		return nil, fmt.Errorf("неожиданный issuer %q", raw.Issuer)
	}
	if raw.Subject == "" {
		return nil, errors.New("отсутствует sub в токене")
	}

	claims := &AuthClaims{
		Subject:           raw.Subject,
		PreferredUsername: raw.PreferredUsername,
		Name:              raw.Name,
		Role:              raw.Role,
		External:          external,
	}
	// Для внешних токенов роль может прийти в realm_access.roles
	if !model.IsValidRole(claims.Role) && raw.RealmAccess != nil {
		claims.Role = highestRole(raw.RealmAccess.Roles)
	}
	return claims, nil
}

// highestRole выбирает admin, затем staff из списка ролей IdP.
func highestRole(roles []string) string {
	switch {
	case slices.Contains(roles, model.RoleAdmin):
		return model.RoleAdmin
	case slices.Contains(roles, model.RoleStaff):
		return model.RoleStaff
	default:
		return ""
	}
}

// --- RBAC middleware helpers ---

// RequireRole возвращает middleware, требующий одну из указанных ролей.
// Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
				return
			}

			if !claims.HasAnyRole(roles...) {
				apierrors.Forbidden(w, fmt.Sprintf("Недостаточно прав: требуется роль %s", strings.Join(roles, " или ")))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// --- Context helpers ---

// ClaimsFromContext извлекает AuthClaims из контекста запроса.
// Возвращает nil, если claims не найдены.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*AuthClaims)
	return claims
}

// withClaims помещает claims в контекст.
func withClaims(ctx context.Context, claims *AuthClaims) context.Context {
	return context.WithValue(ctx, ContextKeyClaims, claims)
}
