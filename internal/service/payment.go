// payment.go — сервис оплаты аренды кошельком.
//
// Кошелёк браузера подписывает и отправляет обычный перевод на фиксированный
// адрес получателя. Сервис:
//  1. создаёт сессию и возвращает запрос перевода {to, value}
//  2. принимает отказ или ошибку кошелька до отправки
//  3. принимает txHash, ждёт включения транзакции в блок и проверяет её
//  4. после подтверждения записывает аренду
//
// Сессии хранятся в памяти процесса (expirable LRU) и теряются при рестарте.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/filmrental/internal/chainclient"
	"github.com/bigkaa/filmrental/internal/domain/model"
	"github.com/bigkaa/filmrental/internal/domain/payment"
	"github.com/bigkaa/filmrental/internal/repository"
)

// Сообщения конечных состояний.
const (
	MsgUserRejected = "Transaction cancelled by user."
	MsgWalletFailed = "Transaction failed"
	MsgTxReverted   = "Transaction reverted"
)

// maxPaymentSessions — предел числа сессий в памяти.
const maxPaymentSessions = 10000

var paymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fr_payments_total",
	Help: "Количество платёжных сессий, достигших состояния.",
}, []string{"state"})

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Chain — операции EVM-узла, нужные для оплаты.
type Chain interface {
	GetBalance(ctx context.Context, address string) (*big.Int, error)
	GetTransaction(ctx context.Context, txHash string) (*chainclient.Transaction, error)
	WaitForReceipt(ctx context.Context, txHash string, pollInterval time.Duration) (*chainclient.Receipt, error)
}

// FilmLookup — поиск фильма в каталоге витрины.
type FilmLookup interface {
	Get(ctx context.Context, id string) (*model.Film, error)
}

// RentalRecorder — запись аренды после оплаты.
type RentalRecorder interface {
	Record(ctx context.Context, req RecordRequest) (*RecordResult, error)
	HasCurrentRental(ctx context.Context, address, filmID string) (bool, error)
}

// PaymentOptions — параметры сервиса оплаты.
type PaymentOptions struct {
	Recipient      string
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
	SessionTTL     time.Duration
	// TrustClient — без узла принимать txHash без проверки
	TrustClient bool
}

// CreatedPayment — новая сессия и запрос перевода для кошелька.
type CreatedPayment struct {
	Payment     model.Payment         `json:"payment"`
	Transaction model.TransferRequest `json:"transaction"`
}

// paymentSession — состояние одной сессии.
type paymentSession struct {
	sm *payment.StateMachine

	mu   sync.Mutex
	data model.Payment
	wei  *big.Int
}

func (ps *paymentSession) view() model.Payment {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	p := ps.data
	p.State = ps.sm.Current()
	p.History = ps.sm.History()
	if ps.data.Rental != nil {
		r := *ps.data.Rental
		p.Rental = &r
	}
	return p
}

func (ps *paymentSession) update(fn func(p *model.Payment)) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	fn(&ps.data)
	ps.data.UpdatedAt = time.Now().UTC()
}

// PaymentService — бизнес-логика оплаты.
type PaymentService struct {
	films    FilmLookup
	rentals  RentalRecorder
	chain    Chain
	opts     PaymentOptions
	sessions *expirable.LRU[string, *paymentSession]
	logger   *slog.Logger
}

// NewPaymentService создаёт сервис оплаты. chain может быть nil.
func NewPaymentService(
	films FilmLookup,
	rentals RentalRecorder,
	chain Chain,
	opts PaymentOptions,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		films:    films,
		rentals:  rentals,
		chain:    chain,
		opts:     opts,
		sessions: expirable.NewLRU[string, *paymentSession](maxPaymentSessions, nil, opts.SessionTTL),
		logger:   logger.With(slog.String("component", "payment_service")),
	}
}

// ChainEnabled — настроен ли JSON-RPC узел.
func (s *PaymentService) ChainEnabled() bool {
	return s.chain != nil
}

// Create создаёт платёжную сессию и переводит её в awaiting-signature.
func (s *PaymentService) Create(ctx context.Context, address, filmID string) (*CreatedPayment, error) {
	address = strings.TrimSpace(address)
	filmID = strings.TrimSpace(filmID)
	if address == "" || filmID == "" {
		return nil, fmt.Errorf("%w: обязательны address и filmId", ErrValidation)
	}
	if _, err := repository.NormalizeAddress(address); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	film, err := s.films.Get(ctx, filmID)
	if err != nil {
		return nil, err
	}
	if !film.Available {
		return nil, fmt.Errorf("фильм %s недоступен для аренды: %w", filmID, ErrConflict)
	}

	rented, err := s.rentals.HasCurrentRental(ctx, address, filmID)
	if err != nil {
		return nil, err
	}
	if rented {
		return nil, fmt.Errorf("фильм %s уже арендован этим кошельком: %w", filmID, ErrConflict)
	}

	wei, err := model.WeiFromEther(film.Price)
	if err != nil {
		return nil, fmt.Errorf("%w: цена фильма: %w", ErrValidation, err)
	}

	if s.chain != nil {
		balance, err := s.chain.GetBalance(ctx, address)
		if err != nil {
			return nil, fmt.Errorf("%w: баланс кошелька: %w", ErrChainUnavailable, err)
		}
		if balance.Cmp(wei) < 0 {
			return nil, fmt.Errorf("%w: требуется %s wei, доступно %s wei", ErrInsufficientBalance, wei, balance)
		}
	}

	now := time.Now().UTC()
	sess := &paymentSession{
		sm:  payment.NewStateMachine(),
		wei: wei,
		data: model.Payment{
			ID:        uuid.NewString(),
			Address:   address,
			FilmID:    film.ID,
			Title:     film.Title,
			Poster:    film.Poster,
			Price:     model.PriceString(film.Price.String()),
			AmountWei: chainclient.FormatHexBig(wei),
			Recipient: s.opts.Recipient,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	if err := sess.sm.TransitionTo(payment.StateAwaitingSignature, "запрошена подпись кошелька"); err != nil {
		return nil, err
	}
	s.sessions.Add(sess.data.ID, sess)
	paymentsTotal.WithLabelValues(string(payment.StateAwaitingSignature)).Inc()

	s.logger.Info("Платёжная сессия создана",
		slog.String("payment_id", sess.data.ID),
		slog.String("film_id", film.ID),
		slog.String("amount_wei", wei.String()),
	)

	view := sess.view()
	return &CreatedPayment{
		Payment: view,
		Transaction: model.TransferRequest{
			From:  address,
			To:    view.Recipient,
			Value: view.AmountWei,
		},
	}, nil
}

// Get возвращает состояние сессии.
func (s *PaymentService) Get(id string) (*model.Payment, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	view := sess.view()
	return &view, nil
}

// Reject фиксирует отказ пользователя от подписи.
func (s *PaymentService) Reject(id string) (*model.Payment, error) {
	return s.finishBeforeSubmit(id, payment.StateRejected, MsgUserRejected)
}

// Fail фиксирует ошибку кошелька до отправки транзакции.
// Сообщение кошелька сохраняется как есть.
func (s *PaymentService) Fail(id, message string) (*model.Payment, error) {
	if strings.TrimSpace(message) == "" {
		message = MsgWalletFailed
	}
	return s.finishBeforeSubmit(id, payment.StateFailed, message)
}

func (s *PaymentService) finishBeforeSubmit(id string, target payment.State, message string) (*model.Payment, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	if err := sess.sm.TransitionFrom(payment.StateAwaitingSignature, target, message); err != nil {
		return nil, err
	}
	sess.update(func(p *model.Payment) { p.Error = message })
	paymentsTotal.WithLabelValues(string(target)).Inc()

	s.logger.Info("Платёжная сессия завершена до отправки",
		slog.String("payment_id", id),
		slog.String("state", string(target)),
		slog.String("reason", message),
	)
	view := sess.view()
	return &view, nil
}

// Submit принимает хэш отправленной транзакции и ждёт её подтверждения.
// Блокируется до включения в блок, отмены ctx или ConfirmTimeout.
// Ошибка подтверждения переводит сессию в failed и возвращается вместе с сессией.
func (s *PaymentService) Submit(ctx context.Context, id, txHash string) (*model.Payment, error) {
	txHash = strings.TrimSpace(txHash)
	if !txHashPattern.MatchString(txHash) {
		return nil, fmt.Errorf("%w: txHash должен быть 0x и 64 шестнадцатеричных символа", ErrValidation)
	}

	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	if s.chain == nil && !s.opts.TrustClient {
		return nil, ErrChainUnavailable
	}

	if err := sess.sm.TransitionFrom(payment.StateAwaitingSignature, payment.StateSubmitted, txHash); err != nil {
		return nil, err
	}
	sess.update(func(p *model.Payment) { p.TxHash = txHash })
	paymentsTotal.WithLabelValues(string(payment.StateSubmitted)).Inc()

	logger := s.logger.With(slog.String("payment_id", id), slog.String("tx_hash", txHash))
	logger.Info("Транзакция отправлена, ожидание подтверждения")

	if s.chain != nil {
		if err := s.verify(ctx, sess, txHash); err != nil {
			return s.markFailed(sess, logger, err.Error())
		}
	} else {
		logger.Warn("Узел не настроен, txHash принят без проверки")
	}

	if err := sess.sm.TransitionTo(payment.StateConfirmed, "транзакция подтверждена"); err != nil {
		return nil, err
	}
	paymentsTotal.WithLabelValues(string(payment.StateConfirmed)).Inc()

	data := sess.view()
	result, err := s.rentals.Record(context.WithoutCancel(ctx), RecordRequest{
		Address: data.Address,
		FilmID:  data.FilmID,
		Price:   data.Price,
		Title:   data.Title,
		Poster:  data.Poster,
		TxHash:  txHash,
	})
	if err != nil {
		sess.update(func(p *model.Payment) { p.Error = "запись аренды: " + err.Error() })
		logger.Error("Оплата подтверждена, но аренда не записана", slog.String("error", err.Error()))
		return nil, fmt.Errorf("запись аренды: %w", err)
	}
	sess.update(func(p *model.Payment) { p.Rental = &result.Rental })

	logger.Info("Оплата подтверждена, аренда записана",
		slog.String("rental_id", result.Rental.ID),
		slog.Bool("film_updated", result.FilmUpdated),
	)
	view := sess.view()
	return &view, nil
}

// verify ждёт квитанцию и проверяет статус, получателя, отправителя и сумму.
func (s *PaymentService) verify(ctx context.Context, sess *paymentSession, txHash string) error {
	if s.opts.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ConfirmTimeout)
		defer cancel()
	}

	receipt, err := s.chain.WaitForReceipt(ctx, txHash, s.opts.PollInterval)
	if err != nil {
		return err
	}
	if !receipt.Succeeded() {
		return errors.New(MsgTxReverted)
	}

	tx, err := s.chain.GetTransaction(ctx, txHash)
	if err != nil {
		return err
	}

	data := sess.view()
	if !strings.EqualFold(tx.To, data.Recipient) {
		return fmt.Errorf("получатель транзакции %s не совпадает с %s", tx.To, data.Recipient)
	}
	if tx.From != "" && !sameAddress(tx.From, data.Address) {
		return fmt.Errorf("отправитель транзакции %s не совпадает с %s", tx.From, data.Address)
	}
	value, err := tx.ValueWei()
	if err != nil {
		return err
	}
	if value.Cmp(sess.wei) < 0 {
		return fmt.Errorf("сумма транзакции %s wei меньше требуемой %s wei", value, sess.wei)
	}
	return nil
}

func (s *PaymentService) markFailed(sess *paymentSession, logger *slog.Logger, message string) (*model.Payment, error) {
	if err := sess.sm.TransitionTo(payment.StateFailed, message); err != nil {
		return nil, err
	}
	sess.update(func(p *model.Payment) { p.Error = message })
	paymentsTotal.WithLabelValues(string(payment.StateFailed)).Inc()

	logger.Warn("Оплата не подтверждена", slog.String("reason", message))
	view := sess.view()
	return &view, nil
}

func (s *PaymentService) session(id string) (*paymentSession, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("платёжная сессия %s: %w", id, ErrNotFound)
	}
	return sess, nil
}

func sameAddress(a, b string) bool {
	na, errA := repository.NormalizeAddress(a)
	nb, errB := repository.NormalizeAddress(b)
	return errA == nil && errB == nil && na == nb
}
