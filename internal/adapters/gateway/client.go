package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/ameernasser/auctionhouse/internal/domain"
	"github.com/ameernasser/auctionhouse/internal/settlement"
)

// Client is the HTTP implementation of the payment-gateway port. Every
// request carries a caller-chosen reference; the provider deduplicates on
// it, which is what makes retries after a timeout safe.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type moveRequest struct {
	Account   string          `json:"account"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method,omitempty"`
	Reference string          `json:"reference"`
}

type moveResponse struct {
	TransactionRef string `json:"transaction_ref"`
	Outcome        string `json:"outcome"`
}

func (c *Client) Charge(ctx context.Context, amount decimal.Decimal, method, reference string) (settlement.GatewayResult, error) {
	return c.move(ctx, "/v1/charges", moveRequest{Amount: amount, Method: method, Reference: reference})
}

func (c *Client) Payout(ctx context.Context, sellerRef string, amount decimal.Decimal, reference string) (settlement.GatewayResult, error) {
	return c.move(ctx, "/v1/payouts", moveRequest{Account: sellerRef, Amount: amount, Reference: reference})
}

func (c *Client) Reverse(ctx context.Context, buyerRef string, amount decimal.Decimal, reference string) (settlement.GatewayResult, error) {
	return c.move(ctx, "/v1/reversals", moveRequest{Account: buyerRef, Amount: amount, Reference: reference})
}

// ConfirmTransfer asks whether the transfer identified by reference has
// landed. A transport failure is reported as an error so callers keep
// their state PENDING.
func (c *Client) ConfirmTransfer(ctx context.Context, reference string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/transfers/"+reference, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, errors.Mark(err, domain.ErrGatewayUnavailable)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var body struct {
			Confirmed bool `json:"confirmed"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return false, err
		}
		return body.Confirmed, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, errors.Mark(errors.Newf("gateway returned %d", resp.StatusCode), domain.ErrGatewayUnavailable)
	}
}

func (c *Client) move(ctx context.Context, path string, reqBody moveRequest) (settlement.GatewayResult, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return settlement.GatewayResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return settlement.GatewayResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts resolve to PENDING on our side, never to a terminal
		// outcome.
		return settlement.GatewayResult{}, errors.Mark(err, domain.ErrGatewayUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return settlement.GatewayResult{}, errors.Mark(errors.Newf("gateway returned %d", resp.StatusCode), domain.ErrGatewayUnavailable)
	}

	var body moveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return settlement.GatewayResult{}, err
	}
	return settlement.GatewayResult{TransactionRef: body.TransactionRef, Outcome: body.Outcome}, nil
}
