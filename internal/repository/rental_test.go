package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bigkaa/filmrental/internal/domain/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0xABCdef0123", "abcdef0123", false},
		{"0XAbc", "abc", false},
		{"abc", "abc", false},
		{"  0xabc  ", "abc", false},
		{"", "", true},
		{"0x", "", true},
		{"../etc/passwd", "", true},
		{"0xab_cd", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeAddress(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("NormalizeAddress(%q): ожидалась ErrInvalidAddress, получено %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("NormalizeAddress(%q) = %q, %v; ожидалось %q", tt.in, got, err, tt.want)
		}
	}
}

func TestRentalRepo_AppendCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo := NewRentalRepository(dir, testLogger())

	r := model.NewRental("2", "Inception", "", "0.02", time.Now())
	if _, created, err := repo.Append(ctx, "0xABC123", r); err != nil || !created {
		t.Fatalf("Append: created=%v err=%v", created, err)
	}

	if _, err := os.Stat(filepath.Join(dir, "rentals_abc123.json")); err != nil {
		t.Errorf("файл аренд не создан: %v", err)
	}

	got, err := repo.List(ctx, "0xabc123")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].FilmID != "2" || got[0].Price != "0.02" || got[0].Status != model.RentalActive {
		t.Errorf("List = %+v", got)
	}
}

func TestRentalRepo_ListUnknownWallet(t *testing.T) {
	repo := NewRentalRepository(t.TempDir(), testLogger())
	got, err := repo.List(context.Background(), "0xdeadbeef")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("ожидался пустой (не nil) срез, получено %#v", got)
	}
}

func TestRentalRepo_AppendIdempotentByTxHash(t *testing.T) {
	ctx := context.Background()
	repo := NewRentalRepository(t.TempDir(), testLogger())

	r := model.NewRental("1", "The Matrix", "", "0.01", time.Now())
	r.TxHash = "0xAA"
	first, created, _ := repo.Append(ctx, "0xabc", r)
	if !created {
		t.Fatal("первая запись должна быть создана")
	}

	dup := model.NewRental("1", "The Matrix", "", "0.01", time.Now().Add(time.Second))
	dup.TxHash = "0xaa"
	got, created, err := repo.Append(ctx, "0xabc", dup)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if created {
		t.Error("повторная запись с тем же txHash не должна создаваться")
	}
	if got.ID != first.ID {
		t.Errorf("возвращена запись %q, ожидалась %q", got.ID, first.ID)
	}

	all, _ := repo.List(ctx, "0xabc")
	if len(all) != 1 {
		t.Errorf("len = %d, ожидалось 1", len(all))
	}
}

func TestRentalRepo_Replace(t *testing.T) {
	ctx := context.Background()
	repo := NewRentalRepository(t.TempDir(), testLogger())

	_, _, _ = repo.Append(ctx, "0xabc", model.NewRental("1", "", "", "1", time.Now()))
	if err := repo.Replace(ctx, "0xabc", nil); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	got, _ := repo.List(ctx, "0xabc")
	if len(got) != 0 {
		t.Errorf("после Replace(nil) len = %d", len(got))
	}

	if err := repo.Replace(ctx, "", nil); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("пустой адрес: ожидалась ErrInvalidAddress, получено %v", err)
	}
}

func TestRentalRepo_AllSkipsBadFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo := NewRentalRepository(dir, testLogger())

	_, _, _ = repo.Append(ctx, "0xaaa", model.NewRental("1", "", "", "1", time.Now()))
	_, _, _ = repo.Append(ctx, "0xbbb", model.NewRental("2", "", "", "2", time.Now()))
	_, _, _ = repo.Append(ctx, "0xbbb", model.NewRental("3", "", "", "3", time.Now()))

	// Повреждённый файл и посторонние файлы
	_ = os.WriteFile(filepath.Join(dir, "rentals_ccc.json"), []byte("{broken"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "films.json"), []byte("[]"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "rentals_ddd.txt"), []byte("[]"), 0o644)

	all, err := repo.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, ожидалось 3", len(all))
	}
	if all[0].Address != "0xaaa" || all[1].Address != "0xbbb" {
		t.Errorf("адреса: %q, %q", all[0].Address, all[1].Address)
	}
}

func TestRentalRepo_AllMissingDir(t *testing.T) {
	repo := NewRentalRepository(filepath.Join(t.TempDir(), "absent"), testLogger())
	all, err := repo.All(context.Background())
	if err != nil || len(all) != 0 {
		t.Errorf("All = %v, %v; ожидался пустой результат", all, err)
	}
}
