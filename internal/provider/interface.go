// Package provider defines the bank aggregator boundary. The aggregator is
// treated as untrusted: responses may be empty, partial, or malformed, and
// the account-linking/OAuth flow that produced a Connection happens outside
// this subsystem.
package provider

import (
	"context"
	"time"

	"tributary/internal/models"
)

// Connection identifies a linked set of external accounts at the aggregator.
// Tokens are produced by the external account-linking flow.
type Connection struct {
	AccessToken string
	AccountIDs  []string
}

// Aggregator fetches raw transactions for a connection over a date range.
type Aggregator interface {
	FetchTransactions(ctx context.Context, conn Connection, from, to time.Time) ([]models.ExternalTransaction, error)
}
