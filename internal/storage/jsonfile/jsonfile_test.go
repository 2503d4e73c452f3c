package jsonfile

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.json")

	if err := Write(path, doc{Name: "films", Count: 3}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var got doc
	if err := Read(path, &got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Name != "films" || got.Count != 3 {
		t.Errorf("Read = %+v, ожидалось {films 3}", got)
	}

	// Temp-файлы не остаются после записи
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("в каталоге %d файлов, ожидался 1", len(entries))
	}
}

func TestRead_Missing(t *testing.T) {
	var v doc
	err := Read(filepath.Join(t.TempDir(), "absent.json"), &v)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ожидалась fs.ErrNotExist, получено: %v", err)
	}
}

func TestRead_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	if err := os.WriteFile(path, []byte("  \n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var v doc
	if err := Read(path, &v); !errors.Is(err, ErrEmpty) {
		t.Errorf("ожидалась ErrEmpty, получено: %v", err)
	}
}

func TestRead_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	var v doc
	err := Read(path, &v)
	if err == nil {
		t.Fatal("ожидалась ошибка десериализации")
	}
	if errors.Is(err, ErrEmpty) || errors.Is(err, fs.ErrNotExist) {
		t.Errorf("неожиданный тип ошибки: %v", err)
	}
}

func TestWrite_Overwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	_ = Write(path, doc{Name: "a", Count: 1})
	if err := Write(path, doc{Name: "b", Count: 2}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var got doc
	_ = Read(path, &got)
	if got.Name != "b" || got.Count != 2 {
		t.Errorf("после перезаписи = %+v, ожидалось {b 2}", got)
	}
}

func TestWritable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	if err := Writable(dir); err != nil {
		t.Fatalf("Writable: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("probe-файл не удалён: %d записей", len(entries))
	}
}
