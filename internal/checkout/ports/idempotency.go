package ports

import "context"

// StoredResponse contains the response data to replay for a reused key. A
// zero StatusCode marks a key that is reserved but not yet resolved.
type StoredResponse struct {
	StatusCode int
	Body       []byte
	OrderID    string
}

// IdempotencyStore ensures checkout requests can be retried safely. A key is
// claimed atomically before the work runs, so two concurrent requests with
// the same key cannot both place an order: exactly one caller acquires the
// claim, then resolves it with Save or frees it with Release.
type IdempotencyStore interface {
	// Reserve claims the key. acquired is true when this caller won the
	// claim; otherwise the previously stored response is returned, which may
	// still be unresolved.
	Reserve(ctx context.Context, key string) (stored *StoredResponse, acquired bool, err error)
	// Save resolves a claimed key with the response to replay.
	Save(ctx context.Context, key string, response StoredResponse) error
	// Release frees a claimed key after a failed attempt so the client can
	// retry.
	Release(ctx context.Context, key string) error
}
