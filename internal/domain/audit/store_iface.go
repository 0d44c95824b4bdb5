package audit

import "context"

type StoreAPI interface {
	// Append serialises writers, passes the current head hash to build and
	// stores the entry it returns.
	Append(ctx context.Context, build func(prev []byte) (Entry, error)) (Entry, error)
	List(ctx context.Context, filter Filter) ([]Entry, int, error)
	// Walk visits every entry in append order.
	Walk(ctx context.Context, fn func(Entry) error) error
}
