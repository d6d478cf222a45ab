package memory

import "context"

// TxRunner runs the function directly. The in-memory stores have no shared
// transaction, so a failed step relies on the caller's compensation path.
type TxRunner struct{}

// NewTxRunner constructs a pass-through transaction runner.
func NewTxRunner() *TxRunner { return &TxRunner{} }

// WithinTx invokes fn with the unchanged context.
func (TxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
