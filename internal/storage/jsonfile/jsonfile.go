// Пакет jsonfile — чтение и атомарная запись JSON-документов на диске.
//
// Запись выполняется через временный файл: temp → fsync → rename,
// поэтому читатель никогда не видит частично записанный документ.
package jsonfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrEmpty — файл существует, но не содержит данных (0 байт или только пробелы).
var ErrEmpty = errors.New("файл пуст")

// ReadRaw читает содержимое файла.
// Отсутствующий файл возвращает ошибку, для которой errors.Is(err, fs.ErrNotExist) == true.
// Пустой файл возвращает ErrEmpty.
func ReadRaw(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения %s: %w", filepath.Base(path), err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrEmpty)
	}
	return data, nil
}

// Read читает файл и десериализует JSON в v.
func Read(path string, v any) error {
	data, err := ReadRaw(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("ошибка десериализации %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Write сериализует v с отступами и атомарно записывает в path.
// Родительский каталог создаётся при необходимости.
func Write(path string, v any) error {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации %s: %w", filepath.Base(path), err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ошибка создания каталога %s: %w", filepath.Dir(path), err)
	}

	// Уникальное имя temp-файла: несколько writer-ов в разных процессах
	// не должны перетирать чужой temp до rename.
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("ошибка создания temp %s: %w", filepath.Base(path), err)
	}
	tmpPath := f.Name()

	if _, err := f.Write(jsonData); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи temp %s: %w", filepath.Base(path), err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync temp %s: %w", filepath.Base(path), err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия temp %s: %w", filepath.Base(path), err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ошибка rename %s: %w", filepath.Base(path), err)
	}

	return nil
}

// Writable проверяет, что в каталог dir можно записывать файлы.
// Используется readiness probe.
func Writable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
