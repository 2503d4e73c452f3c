// Пакет repository — слой доступа к данным Film Rental.
//
// Каталог фильмов и аренды хранятся в JSON-файлах каталога данных:
//   - films.json — массив фильмов
//   - rentals_<адрес кошелька без 0x в нижнем регистре>.json — аренды одного кошелька
//
// Пользователи персонала — в users.json или в PostgreSQL (чистый SQL через pgx).
//
// Read-modify-write над одним файлом сериализуется мьютексом внутри процесса.
// Между процессами блокировок нет: побеждает последний писатель.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrAlreadyExists — запись с таким идентификатором уже существует.
	ErrAlreadyExists = errors.New("запись уже существует")
	// ErrNoCatalog — файл каталога отсутствует или пуст.
	ErrNoCatalog = errors.New("каталог фильмов отсутствует")
	// ErrNotList — файл каталога содержит JSON, но верхний уровень не массив.
	ErrNotList = errors.New("каталог фильмов не является массивом")
	// ErrCorrupt — файл не удалось разобрать как JSON.
	ErrCorrupt = errors.New("файл данных повреждён")
	// ErrInvalidAddress — адрес кошелька пуст или содержит недопустимые символы.
	ErrInvalidAddress = errors.New("некорректный адрес кошелька")
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
