package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bigkaa/filmrental/internal/domain/model"
	"github.com/bigkaa/filmrental/internal/storage/jsonfile"
)

// UsersFileName — имя файла пользователей в каталоге данных.
const UsersFileName = "users.json"

// UserRepository — интерфейс хранилища учётных записей персонала.
type UserRepository interface {
	// Create добавляет пользователя. Занятый id или username — ErrAlreadyExists.
	Create(ctx context.Context, u *model.User) error
	// GetByID возвращает пользователя по ID.
	GetByID(ctx context.Context, id string) (*model.User, error)
	// GetByUsername возвращает пользователя по имени (без учёта регистра).
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// UpdatePasswordHash заменяет хэш пароля.
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	// Count возвращает количество пользователей.
	Count(ctx context.Context) (int, error)
}

// --- Файловая реализация ---

type fileUserRepo struct {
	path string
	mu   sync.Mutex
}

// NewFileUserRepository создаёт хранилище пользователей в users.json.
func NewFileUserRepository(dataDir string) UserRepository {
	return &fileUserRepo{path: filepath.Join(dataDir, UsersFileName)}
}

func (r *fileUserRepo) Create(ctx context.Context, u *model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	users, err := r.load()
	if err != nil {
		return err
	}
	for _, existing := range users {
		if existing.ID == u.ID || strings.EqualFold(existing.Username, u.Username) {
			return fmt.Errorf("пользователь %s: %w", u.Username, ErrAlreadyExists)
		}
	}
	return jsonfile.Write(r.path, append(users, *u))
}

func (r *fileUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.find(ctx, func(u *model.User) bool { return u.ID == id })
}

func (r *fileUserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.find(ctx, func(u *model.User) bool { return strings.EqualFold(u.Username, username) })
}

func (r *fileUserRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	users, err := r.load()
	if err != nil {
		return err
	}
	for i := range users {
		if users[i].ID == id {
			users[i].PasswordHash = hash
			return jsonfile.Write(r.path, users)
		}
	}
	return ErrNotFound
}

func (r *fileUserRepo) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	users, err := r.load()
	if err != nil {
		return 0, err
	}
	return len(users), nil
}

func (r *fileUserRepo) find(ctx context.Context, match func(u *model.User) bool) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	users, err := r.load()
	if err != nil {
		return nil, err
	}
	for i := range users {
		if match(&users[i]) {
			return &users[i], nil
		}
	}
	return nil, ErrNotFound
}

func (r *fileUserRepo) load() ([]model.User, error) {
	users := make([]model.User, 0)
	if err := jsonfile.Read(r.path, &users); err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, jsonfile.ErrEmpty) {
			return make([]model.User, 0), nil
		}
		return nil, fmt.Errorf("%s: %w: %v", UsersFileName, ErrCorrupt, err)
	}
	return users, nil
}

// --- PostgreSQL-реализация ---

type pgUserRepo struct {
	db DBTX
}

// NewPostgresUserRepository создаёт хранилище пользователей в таблице users.
func NewPostgresUserRepository(db DBTX) UserRepository {
	return &pgUserRepo{db: db}
}

const userColumns = `id, username, name, role, password_hash`

func (r *pgUserRepo) Create(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (id, username, name, role, password_hash)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query, u.ID, u.Username, u.Name, u.Role, u.PasswordHash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("пользователь %s: %w", u.Username, ErrAlreadyExists)
		}
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return nil
}

func (r *pgUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	return r.scanOne(ctx, query, id)
}

func (r *pgUserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE lower(username) = lower($1)`, userColumns)
	return r.scanOne(ctx, query, username)
}

func (r *pgUserRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, hash)
	if err != nil {
		return fmt.Errorf("ошибка обновления пароля: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgUserRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта пользователей: %w", err)
	}
	return n, nil
}

func (r *pgUserRepo) scanOne(ctx context.Context, query string, arg any) (*model.User, error) {
	u := &model.User{}
	err := r.db.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Username, &u.Name, &u.Role, &u.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return u, nil
}
