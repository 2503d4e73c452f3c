// Пакет payment — конечный автомат шага оплаты аренды кошельком.
//
// Жизненный цикл:
//
//	idle → awaiting-signature → submitted → confirmed | rejected | failed
//
// awaiting-signature → rejected — пользователь отклонил подпись в кошельке.
// awaiting-signature → failed — кошелёк вернул ошибку до отправки транзакции.
// submitted → confirmed — транзакция замайнена, запускается запись аренды.
// submitted → failed — ошибка сети/узла или транзакция отклонена сетью.
// confirmed, rejected и failed — конечные состояния.
//
// Потокобезопасен через sync.RWMutex.
package payment

import (
	"fmt"
	"sync"
	"time"
)

// State — состояние платёжной сессии.
type State string

const (
	StateIdle              State = "idle"
	StateAwaitingSignature State = "awaiting-signature"
	StateSubmitted         State = "submitted"
	StateConfirmed         State = "confirmed"
	StateRejected          State = "rejected"
	StateFailed            State = "failed"
)

// Коды ошибок перехода.
const (
	CodeInvalidTransition = "INVALID_TRANSITION"
)

// TransitionRecord — запись о переходе между состояниями.
type TransitionRecord struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// validTransitions — матрица допустимых переходов.
var validTransitions = map[State]map[State]bool{
	StateIdle:              {StateAwaitingSignature: true},
	StateAwaitingSignature: {StateSubmitted: true, StateRejected: true, StateFailed: true},
	StateSubmitted:         {StateConfirmed: true, StateFailed: true},
	StateConfirmed:         {},
	StateRejected:          {},
	StateFailed:            {},
}

// StateMachine — автомат одной платёжной сессии.
type StateMachine struct {
	mu      sync.RWMutex
	current State
	history []TransitionRecord
}

// NewStateMachine создаёт автомат в состоянии idle.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		history: make([]TransitionRecord, 0, 4),
	}
}

// Current возвращает текущее состояние.
func (sm *StateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// TransitionTo выполняет переход. reason сохраняется в истории
// (например, текст ошибки кошелька или узла).
func (sm *StateMachine) TransitionTo(target State, reason string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.transitionLocked(target, reason)
}

// TransitionFrom выполняет переход, только если текущее состояние равно from.
// Проверка и переход выполняются атомарно.
func (sm *StateMachine) TransitionFrom(from, target State, reason string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.current != from {
		return &TransitionError{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("ожидалось состояние %s, текущее %s", from, sm.current),
		}
	}
	return sm.transitionLocked(target, reason)
}

func (sm *StateMachine) transitionLocked(target State, reason string) error {
	if !IsValidState(target) {
		return &TransitionError{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("недопустимое целевое состояние: %q", target),
		}
	}

	if !validTransitions[sm.current][target] {
		return &TransitionError{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("переход %s → %s недопустим", sm.current, target),
		}
	}

	sm.history = append(sm.history, TransitionRecord{
		From:      sm.current,
		To:        target,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
	sm.current = target
	return nil
}

// IsFinal — достигнуто ли конечное состояние.
func (sm *StateMachine) IsFinal() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return IsFinal(sm.current)
}

// History возвращает копию истории переходов.
func (sm *StateMachine) History() []TransitionRecord {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	result := make([]TransitionRecord, len(sm.history))
	copy(result, sm.history)
	return result
}

// TransitionError — ошибка перехода между состояниями.
type TransitionError struct {
	Code    string
	Message string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsFinal — является ли состояние конечным.
func IsFinal(s State) bool {
	return s == StateConfirmed || s == StateRejected || s == StateFailed
}

// IsValidState проверяет, что s — известное состояние.
func IsValidState(s State) bool {
	_, ok := validTransitions[s]
	return ok
}
