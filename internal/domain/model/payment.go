package model

import (
	"fmt"
	"math/big"
	"time"

	"github.com/bigkaa/filmrental/internal/domain/payment"
)

// weiExponent — 1 ETH = 10^18 wei.
const weiExponent = 18

// Payment — платёжная сессия аренды одного фильма одним кошельком.
type Payment struct {
	ID        string      `json:"id"`
	Address   string      `json:"address"`
	FilmID    string      `json:"filmId"`
	Title     string      `json:"title"`
	Poster    string      `json:"poster"`
	Price     PriceString `json:"price"`
	AmountWei string      `json:"amountWei"`
	Recipient string      `json:"recipient"`
	// State — текущее состояние автомата оплаты
	State     payment.State              `json:"state"`
	TxHash    string                     `json:"txHash,omitempty"`
	Error     string                     `json:"error,omitempty"`
	CreatedAt time.Time                  `json:"createdAt"`
	UpdatedAt time.Time                  `json:"updatedAt"`
	History   []payment.TransitionRecord `json:"history"`
	// Rental — запись аренды после подтверждения
	Rental *Rental `json:"rental,omitempty"`
}

// TransferRequest — запрос перевода, который подписывает кошелёк браузера.
type TransferRequest struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
}

// WeiFromEther переводит сумму в ETH в wei (×10^18) без потери точности.
// Дробные доли wei и отрицательные суммы — ошибка.
func WeiFromEther(a Amount) (*big.Int, error) {
	if a.IsNegative() {
		return nil, fmt.Errorf("отрицательная сумма %s", a.String())
	}
	wei := a.Shift(weiExponent)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("сумма %s точнее 1 wei", a.String())
	}
	return wei.BigInt(), nil
}
