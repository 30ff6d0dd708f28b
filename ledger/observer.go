package ledger

import "context"

// =============================================================================
// POST-COMMIT OBSERVERS
// =============================================================================
// Side effects (audit trails, notifications) hang off an explicit observer
// list instead of ambient save/delete signals: what runs, and when, is
// visible at the call site and testable. Observers fire only after the
// store transaction has committed and must not mutate business values;
// an observer error is the observer's problem, not the transaction's.

type Action string

const (
	ActionCreated Action = "created"
	ActionEdited  Action = "edited"
	ActionVoided  Action = "voided"
)

// Event describes one committed lifecycle operation.
type Event struct {
	Action Action
	Module string
	Header *Header
}

// Observer receives events after commit.
type Observer interface {
	Notify(ctx context.Context, e Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, e Event)

func (f ObserverFunc) Notify(ctx context.Context, e Event) { f(ctx, e) }
