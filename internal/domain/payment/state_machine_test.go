package payment

import (
	"errors"
	"sync"
	"testing"
)

// TestNewStateMachine проверяет начальное состояние.
func TestNewStateMachine(t *testing.T) {
	sm := NewStateMachine()
	if sm.Current() != StateIdle {
		t.Errorf("Current() = %q, ожидалось idle", sm.Current())
	}
	if sm.IsFinal() {
		t.Error("idle не является конечным состоянием")
	}
	if len(sm.History()) != 0 {
		t.Error("история нового автомата должна быть пустой")
	}
}

// TestTransitions_HappyPath проверяет путь до confirmed.
func TestTransitions_HappyPath(t *testing.T) {
	sm := NewStateMachine()
	steps := []State{StateAwaitingSignature, StateSubmitted, StateConfirmed}
	for _, s := range steps {
		if err := sm.TransitionTo(s, ""); err != nil {
			t.Fatalf("переход в %s: %v", s, err)
		}
	}
	if !sm.IsFinal() {
		t.Error("confirmed — конечное состояние")
	}

	history := sm.History()
	if len(history) != 3 {
		t.Fatalf("len(history) = %d, ожидалось 3", len(history))
	}
	if history[0].From != StateIdle || history[2].To != StateConfirmed {
		t.Errorf("история некорректна: %+v", history)
	}
}

// TestTransitions_Matrix проверяет допустимые и запрещённые переходы.
func TestTransitions_Matrix(t *testing.T) {
	tests := []struct {
		path []State
		to   State
		ok   bool
	}{
		{nil, StateSubmitted, false},
		{nil, StateConfirmed, false},
		{[]State{StateAwaitingSignature}, StateRejected, true},
		{[]State{StateAwaitingSignature}, StateFailed, true},
		{[]State{StateAwaitingSignature}, StateConfirmed, false},
		{[]State{StateAwaitingSignature, StateSubmitted}, StateRejected, false},
		{[]State{StateAwaitingSignature, StateSubmitted}, StateFailed, true},
		{[]State{StateAwaitingSignature, StateRejected}, StateSubmitted, false},
		{[]State{StateAwaitingSignature, StateSubmitted, StateFailed}, StateConfirmed, false},
	}

	for _, tt := range tests {
		sm := NewStateMachine()
		for _, s := range tt.path {
			if err := sm.TransitionTo(s, ""); err != nil {
				t.Fatalf("подготовка %v: %v", tt.path, err)
			}
		}

		err := sm.TransitionTo(tt.to, "test")
		if tt.ok && err != nil {
			t.Errorf("%v → %s: неожиданная ошибка %v", tt.path, tt.to, err)
		}
		if !tt.ok {
			var te *TransitionError
			if !errors.As(err, &te) || te.Code != CodeInvalidTransition {
				t.Errorf("%v → %s: ожидалась TransitionError INVALID_TRANSITION, получено %v", tt.path, tt.to, err)
			}
		}
	}
}

// TestTransition_UnknownState проверяет отказ для неизвестного состояния.
func TestTransition_UnknownState(t *testing.T) {
	sm := NewStateMachine()
	if err := sm.TransitionTo(State("paid"), ""); err == nil {
		t.Error("ожидалась ошибка для неизвестного состояния")
	}
}

// TestTransition_ReasonRecorded проверяет сохранение причины в истории.
func TestTransition_ReasonRecorded(t *testing.T) {
	sm := NewStateMachine()
	_ = sm.TransitionTo(StateAwaitingSignature, "")
	_ = sm.TransitionTo(StateRejected, "Transaction cancelled by user.")

	h := sm.History()
	if h[len(h)-1].Reason != "Transaction cancelled by user." {
		t.Errorf("Reason = %q", h[len(h)-1].Reason)
	}
}

// TestConcurrentFinalTransition — только один из конкурентных переходов в конечное состояние успешен.
func TestConcurrentFinalTransition(t *testing.T) {
	sm := NewStateMachine()
	_ = sm.TransitionTo(StateAwaitingSignature, "")
	_ = sm.TransitionTo(StateSubmitted, "")

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target := StateConfirmed
			if i%2 == 0 {
				target = StateFailed
			}
			if err := sm.TransitionTo(target, ""); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("успешных переходов = %d, ожидался 1", succeeded)
	}
}

func TestTransitionFrom(t *testing.T) {
	sm := NewStateMachine()
	_ = sm.TransitionTo(StateAwaitingSignature, "")

	// submitted → failed допустим автоматом, но не из ожидаемого состояния
	if err := sm.TransitionFrom(StateSubmitted, StateFailed, "x"); err == nil {
		t.Fatal("ожидалась ошибка: текущее состояние не submitted")
	}
	if sm.Current() != StateAwaitingSignature {
		t.Errorf("Current() = %s после неудачного перехода", sm.Current())
	}

	if err := sm.TransitionFrom(StateAwaitingSignature, StateRejected, "cancelled"); err != nil {
		t.Fatalf("TransitionFrom: %v", err)
	}
	h := sm.History()
	if len(h) != 2 || h[1].Reason != "cancelled" {
		t.Errorf("History = %+v", h)
	}
}
