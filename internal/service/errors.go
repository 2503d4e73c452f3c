// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся ресурс или недопустимое состояние).
	ErrConflict = errors.New("конфликт")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrUnauthorized — неверные учётные данные.
	ErrUnauthorized = errors.New("неверные учётные данные")
	// ErrInsufficientBalance — баланса кошелька не хватает для оплаты.
	ErrInsufficientBalance = errors.New("недостаточно средств")
	// ErrChainUnavailable — JSON-RPC узел не настроен.
	ErrChainUnavailable = errors.New("узел блокчейна не настроен")
	// ErrRemoteCatalogDisabled — удалённый API каталога не настроен.
	ErrRemoteCatalogDisabled = errors.New("удалённый API каталога не настроен")
	// ErrCatalogCorrupt — файл каталога повреждён или не является массивом.
	ErrCatalogCorrupt = errors.New("каталог фильмов повреждён")
)
