package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"tributary/internal/logger"
	"tributary/internal/models"
)

const maxFetchRetries = 5

// httpAggregator talks to an aggregator's REST API. Transient failures are
// retried with exponential backoff under the caller's context deadline.
type httpAggregator struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAggregator creates an Aggregator backed by the given base URL.
func NewHTTPAggregator(baseURL string, timeout time.Duration) Aggregator {
	return &httpAggregator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// transactionPage mirrors the aggregator's wire format.
type transactionPage struct {
	Results []struct {
		TransactionID string  `json:"transaction_id"`
		AccountID     string  `json:"account_id"`
		Amount        float64 `json:"amount"`
		Currency      string  `json:"currency"`
		Timestamp     string  `json:"timestamp"`
		Description   string  `json:"description"`
		MerchantName  string  `json:"merchant_name"`
	} `json:"results"`
}

// FetchTransactions fetches transactions for every account on the
// connection. A nil or empty result set is valid.
func (a *httpAggregator) FetchTransactions(ctx context.Context, conn Connection, from, to time.Time) ([]models.ExternalTransaction, error) {
	var all []models.ExternalTransaction

	for _, accountID := range conn.AccountIDs {
		page, err := a.fetchAccount(ctx, conn.AccessToken, accountID, from, to)
		if err != nil {
			return nil, fmt.Errorf("fetching account %s: %w", accountID, err)
		}
		all = append(all, page...)
	}

	return all, nil
}

func (a *httpAggregator) fetchAccount(ctx context.Context, token, accountID string, from, to time.Time) ([]models.ExternalTransaction, error) {
	params := url.Values{}
	params.Set("from", from.Format("2006-01-02"))
	params.Set("to", to.Format("2006-01-02"))
	endpoint := fmt.Sprintf("%s/accounts/%s/transactions?%s", a.baseURL, url.PathEscape(accountID), params.Encode())

	var page transactionPage

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := a.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return json.Unmarshal(body, &page)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("aggregator returned %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("aggregator returned %d: %s", resp.StatusCode, body))
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxFetchRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	out := make([]models.ExternalTransaction, 0, len(page.Results))
	for _, r := range page.Results {
		date, err := time.Parse(time.RFC3339, r.Timestamp)
		if err != nil {
			// Untrusted input: skip records with unparseable dates rather
			// than failing the whole account.
			logger.Get().Warnw("skipping transaction with bad timestamp",
				"transaction_id", r.TransactionID, "timestamp", r.Timestamp)
			continue
		}
		out = append(out, models.ExternalTransaction{
			ExternalID:   r.TransactionID,
			AccountID:    r.AccountID,
			Amount:       r.Amount,
			Currency:     r.Currency,
			Date:         date,
			Description:  r.Description,
			MerchantName: r.MerchantName,
		})
	}
	return out, nil
}
