package settings

import "context"

type StoreAPI interface {
	// LoadSMTP returns ok=false when nothing has been saved yet.
	LoadSMTP(ctx context.Context) (SMTP, bool, error)
	SaveSMTP(ctx context.Context, s SMTP) error
}
