package service

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/filmrental/internal/chainclient"
	"github.com/bigkaa/filmrental/internal/domain/model"
	"github.com/bigkaa/filmrental/internal/domain/payment"
)

const (
	testRecipient = "0x00000000000000000000000000000000000000aa"
	testTxHash    = "0x1111111111111111111111111111111111111111111111111111111111111111"
)

// mockChain — узел с заданными ответами.
type mockChain struct {
	mu         sync.Mutex
	balance    *big.Int
	balanceErr error
	tx         *chainclient.Transaction
	txErr      error
	receipt    *chainclient.Receipt
	receiptErr error
}

func (m *mockChain) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balanceErr != nil {
		return nil, m.balanceErr
	}
	return new(big.Int).Set(m.balance), nil
}

func (m *mockChain) GetTransaction(ctx context.Context, txHash string) (*chainclient.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.txErr != nil {
		return nil, m.txErr
	}
	return m.tx, nil
}

func (m *mockChain) WaitForReceipt(ctx context.Context, txHash string, poll time.Duration) (*chainclient.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.receiptErr != nil {
		return nil, m.receiptErr
	}
	return m.receipt, nil
}

// mockFilms — каталог из фиксированного набора.
type mockFilms map[string]model.Film

func (m mockFilms) Get(ctx context.Context, id string) (*model.Film, error) {
	f, ok := m[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &f, nil
}

// mockRecorder запоминает записанные аренды.
type mockRecorder struct {
	mu       sync.Mutex
	recorded []RecordRequest
	current  bool
	err      error
}

func (m *mockRecorder) Record(ctx context.Context, req RecordRequest) (*RecordResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.recorded = append(m.recorded, req)
	r := model.NewRental(req.FilmID, req.Title, req.Poster, req.Price, time.Now())
	r.TxHash = req.TxHash
	return &RecordResult{Rental: r, Created: true, FilmUpdated: true}, nil
}

func (m *mockRecorder) HasCurrentRental(ctx context.Context, address, filmID string) (bool, error) {
	return m.current, nil
}

// oneEther — 1 ETH в wei.
var oneEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func testFilms() mockFilms {
	return mockFilms{
		"1":   {ID: "1", Title: "Heat", Price: model.MustAmount("0.5"), Available: true},
		"off": {ID: "off", Title: "Gone", Price: model.MustAmount("1"), Available: false},
	}
}

func goodChain() *mockChain {
	half := new(big.Int).Div(oneEther, big.NewInt(2))
	return &mockChain{
		balance: new(big.Int).Set(oneEther),
		receipt: &chainclient.Receipt{TransactionHash: testTxHash, Status: "0x1"},
		tx: &chainclient.Transaction{
			Hash:  testTxHash,
			From:  testWallet,
			To:    testRecipient,
			Value: chainclient.FormatHexBig(half),
		},
	}
}

func newTestPayments(chain Chain, rec *mockRecorder, trust bool) *PaymentService {
	return NewPaymentService(testFilms(), rec, chain, PaymentOptions{
		Recipient:      testRecipient,
		PollInterval:   10 * time.Millisecond,
		ConfirmTimeout: time.Second,
		SessionTTL:     time.Hour,
		TrustClient:    trust,
	}, testLogger())
}

func TestPaymentCreate(t *testing.T) {
	svc := newTestPayments(goodChain(), &mockRecorder{}, false)

	created, err := svc.Create(context.Background(), testWallet, "1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	p := created.Payment
	if p.State != payment.StateAwaitingSignature {
		t.Errorf("state = %s", p.State)
	}
	if p.Price != "0.5" || p.Recipient != testRecipient {
		t.Errorf("payment = %+v", p)
	}
	if created.Transaction.To != testRecipient || created.Transaction.From != testWallet {
		t.Errorf("transaction = %+v", created.Transaction)
	}
	wei, err := chainclient.ParseHexBig(created.Transaction.Value)
	if err != nil || wei.Cmp(new(big.Int).Div(oneEther, big.NewInt(2))) != 0 {
		t.Errorf("value = %s (%v)", created.Transaction.Value, err)
	}

	got, err := svc.Get(p.ID)
	if err != nil || got.ID != p.ID {
		t.Errorf("Get = %+v, %v", got, err)
	}
}

func TestPaymentCreate_Errors(t *testing.T) {
	poor := goodChain()
	poor.balance = big.NewInt(1)
	down := goodChain()
	down.balanceErr = errors.New("connection refused")

	tests := []struct {
		name    string
		chain   Chain
		rec     *mockRecorder
		address string
		filmID  string
		want    error
	}{
		{"без адреса", goodChain(), &mockRecorder{}, "", "1", ErrValidation},
		{"плохой адрес", goodChain(), &mockRecorder{}, "0x-!", "1", ErrValidation},
		{"нет фильма", goodChain(), &mockRecorder{}, testWallet, "404", ErrNotFound},
		{"фильм недоступен", goodChain(), &mockRecorder{}, testWallet, "off", ErrConflict},
		{"уже арендован", goodChain(), &mockRecorder{current: true}, testWallet, "1", ErrConflict},
		{"мало средств", poor, &mockRecorder{}, testWallet, "1", ErrInsufficientBalance},
		{"узел недоступен", down, &mockRecorder{}, testWallet, "1", ErrChainUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestPayments(tt.chain, tt.rec, false)
			if _, err := svc.Create(context.Background(), tt.address, tt.filmID); !errors.Is(err, tt.want) {
				t.Errorf("ожидалась %v, получено %v", tt.want, err)
			}
		})
	}
}

func TestPaymentRejectAndFail(t *testing.T) {
	ctx := context.Background()
	svc := newTestPayments(goodChain(), &mockRecorder{}, false)

	created, _ := svc.Create(ctx, testWallet, "1")
	p, err := svc.Reject(created.Payment.ID)
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if p.State != payment.StateRejected || p.Error != MsgUserRejected {
		t.Errorf("после отказа: %+v", p)
	}

	// Повторный отказ из конечного состояния недопустим
	var te *payment.TransitionError
	if _, err := svc.Reject(created.Payment.ID); !errors.As(err, &te) {
		t.Errorf("ожидалась TransitionError, получено %v", err)
	}

	created, _ = svc.Create(ctx, testWallet, "1")
	p, err = svc.Fail(created.Payment.ID, "")
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if p.State != payment.StateFailed || p.Error != MsgWalletFailed {
		t.Errorf("после ошибки кошелька: %+v", p)
	}

	if _, err := svc.Reject("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("неизвестная сессия: %v", err)
	}
}

func TestPaymentSubmit_Confirmed(t *testing.T) {
	rec := &mockRecorder{}
	svc := newTestPayments(goodChain(), rec, false)

	created, err := svc.Create(context.Background(), testWallet, "1")
	if err != nil {
		t.Fatal(err)
	}
	p, err := svc.Submit(context.Background(), created.Payment.ID, testTxHash)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if p.State != payment.StateConfirmed || p.Rental == nil || p.TxHash != testTxHash {
		t.Fatalf("после подтверждения: %+v", p)
	}
	if len(p.History) != 3 {
		t.Errorf("история переходов: %+v", p.History)
	}
	if len(rec.recorded) != 1 || rec.recorded[0].Price != "0.5" || rec.recorded[0].TxHash != testTxHash {
		t.Errorf("записанная аренда: %+v", rec.recorded)
	}

	// Повторная отправка после подтверждения недопустима
	var te *payment.TransitionError
	if _, err := svc.Submit(context.Background(), created.Payment.ID, testTxHash); !errors.As(err, &te) {
		t.Errorf("ожидалась TransitionError, получено %v", err)
	}
}

func TestPaymentSubmit_VerificationFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *mockChain)
		reason string
	}{
		{"откат транзакции", func(c *mockChain) { c.receipt.Status = "0x0" }, MsgTxReverted},
		{"чужой получатель", func(c *mockChain) { c.tx.To = "0x00000000000000000000000000000000000000bb" }, "получатель"},
		{"чужой отправитель", func(c *mockChain) { c.tx.From = "0x00000000000000000000000000000000000000cc" }, "отправитель"},
		{"мало wei", func(c *mockChain) { c.tx.Value = "0x1" }, "меньше требуемой"},
		{"ошибка ожидания", func(c *mockChain) { c.receiptErr = context.DeadlineExceeded }, "deadline"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := goodChain()
			tt.mutate(chain)
			rec := &mockRecorder{}
			svc := newTestPayments(chain, rec, false)

			created, err := svc.Create(context.Background(), testWallet, "1")
			if err != nil {
				t.Fatal(err)
			}
			p, err := svc.Submit(context.Background(), created.Payment.ID, testTxHash)
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			if p.State != payment.StateFailed {
				t.Errorf("state = %s", p.State)
			}
			if !strings.Contains(p.Error, tt.reason) {
				t.Errorf("error = %q, ожидалось упоминание %q", p.Error, tt.reason)
			}
			if len(rec.recorded) != 0 {
				t.Error("аренда не должна записываться")
			}
		})
	}
}

func TestPaymentSubmit_Validation(t *testing.T) {
	svc := newTestPayments(goodChain(), &mockRecorder{}, false)
	created, _ := svc.Create(context.Background(), testWallet, "1")

	for _, hash := range []string{"", "0x123", "1111111111111111111111111111111111111111111111111111111111111111ab", testTxHash[:65] + "z"} {
		if _, err := svc.Submit(context.Background(), created.Payment.ID, hash); !errors.Is(err, ErrValidation) {
			t.Errorf("txHash %q: %v", hash, err)
		}
	}
	if _, err := svc.Submit(context.Background(), "missing", testTxHash); !errors.Is(err, ErrNotFound) {
		t.Errorf("неизвестная сессия: %v", err)
	}
}

func TestPaymentWithoutChain(t *testing.T) {
	ctx := context.Background()

	t.Run("без узла и без доверия", func(t *testing.T) {
		svc := newTestPayments(nil, &mockRecorder{}, false)
		if svc.ChainEnabled() {
			t.Error("узел не настроен")
		}
		created, err := svc.Create(ctx, testWallet, "1")
		if err != nil {
			t.Fatalf("Create без узла: %v", err)
		}
		if _, err := svc.Submit(ctx, created.Payment.ID, testTxHash); !errors.Is(err, ErrChainUnavailable) {
			t.Errorf("ожидалась ErrChainUnavailable, получено %v", err)
		}
		// Сессия остаётся в ожидании подписи
		p, _ := svc.Get(created.Payment.ID)
		if p.State != payment.StateAwaitingSignature {
			t.Errorf("state = %s", p.State)
		}
	})

	t.Run("доверие клиенту", func(t *testing.T) {
		rec := &mockRecorder{}
		svc := newTestPayments(nil, rec, true)
		created, _ := svc.Create(ctx, testWallet, "1")
		p, err := svc.Submit(ctx, created.Payment.ID, testTxHash)
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if p.State != payment.StateConfirmed || len(rec.recorded) != 1 {
			t.Errorf("state = %s, записей %d", p.State, len(rec.recorded))
		}
	})
}

func TestPaymentSubmit_RecordError(t *testing.T) {
	rec := &mockRecorder{err: errors.New("disk full")}
	svc := newTestPayments(goodChain(), rec, false)
	created, _ := svc.Create(context.Background(), testWallet, "1")

	if _, err := svc.Submit(context.Background(), created.Payment.ID, testTxHash); err == nil {
		t.Fatal("ожидалась ошибка записи аренды")
	}
	p, _ := svc.Get(created.Payment.ID)
	if p.State != payment.StateConfirmed || !strings.Contains(p.Error, "disk full") {
		t.Errorf("сессия после сбоя записи: %+v", p)
	}
}
