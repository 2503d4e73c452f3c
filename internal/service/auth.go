// auth.go — аутентификация персонала: вход, выпуск токенов, смена пароля.
//
// Пароли хранятся bcrypt-хэшами. Токены — HS256 JWT с claims
// sub (ID пользователя), preferred_username, name и role.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/filmrental/internal/api/middleware"
	"github.com/bigkaa/filmrental/internal/domain/model"
	"github.com/bigkaa/filmrental/internal/repository"
)

// MinPasswordLength — минимальная длина нового пароля.
const MinPasswordLength = 6

// Ошибки смены пароля. Тексты отдаются клиенту как есть.
//
//nolint:staticcheck // ST1005: сообщения для клиента с заглавной буквы
var (
	ErrPasswordMissing   = errors.New("Missing old or new password")
	ErrPasswordIncorrect = errors.New("Current password is incorrect")
	ErrPasswordTooShort  = fmt.Errorf("New password must be at least %d characters", MinPasswordLength)
)

// LoginResult — результат успешного входа.
type LoginResult struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
	User      model.PublicUser `json:"user"`
}

// AuthService — сервис аутентификации персонала.
type AuthService struct {
	users      repository.UserRepository
	secret     []byte
	issuer     string
	ttl        time.Duration
	bcryptCost int
	logger     *slog.Logger
	now        func() time.Time
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(
	users repository.UserRepository,
	secret, issuer string,
	ttl time.Duration,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:      users,
		secret:     []byte(secret),
		issuer:     issuer,
		ttl:        ttl,
		bcryptCost: bcrypt.DefaultCost,
		logger:     logger.With(slog.String("component", "auth_service")),
		now:        time.Now,
	}
}

// SeedDefaultUsers создаёт демо-пользователей admin и staff,
// если хранилище пользователей пусто.
func (s *AuthService) SeedDefaultUsers(ctx context.Context, adminPassword, staffPassword string) error {
	n, err := s.users.Count(ctx)
	if err != nil {
		return fmt.Errorf("подсчёт пользователей: %w", err)
	}
	if n > 0 {
		return nil
	}

	seed := []struct {
		user     model.User
		password string
	}{
		{model.User{ID: "1", Username: "admin", Name: "Administrator", Role: model.RoleAdmin}, adminPassword},
		{model.User{ID: "2", Username: "staff", Name: "Staff Member", Role: model.RoleStaff}, staffPassword},
	}
	for _, item := range seed {
		hash, err := bcrypt.GenerateFromPassword([]byte(item.password), s.bcryptCost)
		if err != nil {
			return fmt.Errorf("хэширование пароля %s: %w", item.user.Username, err)
		}
		u := item.user
		u.PasswordHash = string(hash)
		if err := s.users.Create(ctx, &u); err != nil && !errors.Is(err, repository.ErrAlreadyExists) {
			return fmt.Errorf("создание пользователя %s: %w", u.Username, err)
		}
	}

	s.logger.Info("Созданы пользователи по умолчанию",
		slog.String("admin", "admin"),
		slog.String("staff", "staff"),
	)
	return nil
}

// Login проверяет учётные данные и выпускает токен.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: обязательны username и password", ErrValidation)
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("поиск пользователя: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.logger.Warn("Неудачная попытка входа", slog.String("username", username))
		return nil, ErrUnauthorized
	}

	token, expiresAt, err := s.IssueToken(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Пользователь вошёл",
		slog.String("user_id", user.ID),
		slog.String("role", user.Role),
	)
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user.Public()}, nil
}

// IssueToken выпускает HS256-токен для пользователя.
func (s *AuthService) IssueToken(user *model.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := middleware.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		PreferredUsername: user.Username,
		Name:              user.Name,
		Role:              user.Role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("подпись токена: %w", err)
	}
	return signed, expiresAt, nil
}

// CurrentUser возвращает пользователя по ID из токена.
// Для внешних токенов, которых нет в хранилище, строит пользователя из claims.
func (s *AuthService) CurrentUser(ctx context.Context, claims *middleware.AuthClaims) (*model.PublicUser, error) {
	user, err := s.users.GetByID(ctx, claims.Subject)
	if err == nil {
		pub := user.Public()
		return &pub, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("поиск пользователя: %w", err)
	}
	if !claims.External {
		return nil, fmt.Errorf("пользователь %s: %w", claims.Subject, ErrNotFound)
	}
	return &model.PublicUser{
		ID:       claims.Subject,
		Username: claims.PreferredUsername,
		Name:     claims.Name,
		Role:     claims.Role,
	}, nil
}

// ChangePassword меняет пароль пользователя userID.
func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return ErrPasswordMissing
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("пользователь %s: %w", userID, ErrNotFound)
		}
		return fmt.Errorf("поиск пользователя: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)) != nil {
		return ErrPasswordIncorrect
	}
	if len(newPassword) < MinPasswordLength {
		return ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("хэширование пароля: %w", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, string(hash)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("пользователь %s: %w", userID, ErrNotFound)
		}
		return fmt.Errorf("сохранение пароля: %w", err)
	}

	s.logger.Info("Пароль изменён", slog.String("user_id", userID))
	return nil
}
