package strategy

import "sync"

type QuoteState string

type QuoteEvent string

const (
	StateNoQuote   QuoteState = "NO_QUOTE"
	StateQuoting   QuoteState = "QUOTING"
	StateRepricing QuoteState = "REPRICING"
)

const (
	EventPlace    QuoteEvent = "PLACE"
	EventReprice  QuoteEvent = "REPRICE"
	EventSettle   QuoteEvent = "SETTLE"
	EventWithdraw QuoteEvent = "WITHDRAW"
)

// QuoteStateMachine tracks where the ETF quote is in its lifecycle. A
// reprice keeps the machine in REPRICING until the replacing insert is
// acknowledged.
type QuoteStateMachine struct {
	mu    sync.Mutex
	State QuoteState
}

func NewQuoteStateMachine() *QuoteStateMachine {
	return &QuoteStateMachine{State: StateNoQuote}
}

func (s *QuoteStateMachine) Apply(event QuoteEvent) QuoteState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = nextQuoteState(s.State, event)
	return s.State
}

func (s *QuoteStateMachine) Current() QuoteState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.State
}

func nextQuoteState(current QuoteState, event QuoteEvent) QuoteState {
	switch current {
	case StateNoQuote:
		if event == EventPlace {
			return StateQuoting
		}
	case StateQuoting:
		if event == EventReprice {
			return StateRepricing
		}
		if event == EventWithdraw {
			return StateNoQuote
		}
	case StateRepricing:
		if event == EventSettle {
			return StateQuoting
		}
		if event == EventWithdraw {
			return StateNoQuote
		}
	}
	return current
}
