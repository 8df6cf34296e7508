// Package ledger talks to the external anchor gateway, the service that
// fronts the on-chain audit contract. The gateway accepts a transaction,
// returns a reference immediately, and confirms it asynchronously; this
// client submits and then polls the reference until it is confirmed or the
// configured bound expires.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrSubmission means the transaction never reached the ledger; the
	// caller may retry freely.
	ErrSubmission = errors.New("ledger submission failed")
	// ErrConfirmationTimeout means the transaction was submitted but not
	// confirmed within the bound. It may still confirm later; callers must
	// verify out-of-band before resubmitting or they risk a duplicate anchor.
	ErrConfirmationTimeout = errors.New("ledger confirmation timed out")
	// ErrUnknownClaimIdentity means the ledger has no createClaim record for
	// the supplied claim key.
	ErrUnknownClaimIdentity = errors.New("unknown claim identity on ledger")
	// ErrRejected means the ledger accepted the submission and then marked
	// the transaction failed.
	ErrRejected = errors.New("ledger rejected transaction")
)

// TxRef identifies a ledger transaction for later lookup and display.
type TxRef string

// Client is the two-operation surface of the audit ledger. Both calls block
// until the transaction is confirmed or ctx/the confirmation bound expires.
// Every successful call appends irreversibly; there is no undo and the
// ledger does not deduplicate, so callers must invoke each logical
// transition exactly once.
type Client interface {
	CreateClaim(ctx context.Context, claimKey, contentFingerprint string) (TxRef, error)
	UpdateStatus(ctx context.Context, claimKey string, statusCode uint8, contentFingerprint string) (TxRef, error)
}

// HTTPClient implements Client against the anchor gateway's REST API.
// It is stateless apart from the shared http.Client and safe for concurrent
// use across claims.
type HTTPClient struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	confirmTimeout time.Duration
	pollInterval   time.Duration
}

// Options bound the confirmation wait. Zero values get defaults.
type Options struct {
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	HTTPClient     *http.Client
}

func NewHTTPClient(baseURL, apiKey string, opts Options) *HTTPClient {
	if opts.ConfirmTimeout == 0 {
		opts.ConfirmTimeout = 60 * time.Second
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPClient{
		baseURL:        baseURL,
		apiKey:         apiKey,
		httpClient:     opts.HTTPClient,
		confirmTimeout: opts.ConfirmTimeout,
		pollInterval:   opts.PollInterval,
	}
}

type submitRequest struct {
	Op          string `json:"op"`
	ClaimKey    string `json:"claim_key"`
	StatusCode  uint8  `json:"status_code,omitempty"`
	ContentHash string `json:"content_hash"`
}

type submitResponse struct {
	TxRef string `json:"tx_ref"`
	Error string `json:"error,omitempty"`
}

type txStatusResponse struct {
	Status string `json:"status"` // pending | confirmed | failed
}

func (c *HTTPClient) CreateClaim(ctx context.Context, claimKey, contentFingerprint string) (TxRef, error) {
	return c.anchor(ctx, submitRequest{
		Op:          "create_claim",
		ClaimKey:    claimKey,
		ContentHash: contentFingerprint,
	})
}

func (c *HTTPClient) UpdateStatus(ctx context.Context, claimKey string, statusCode uint8, contentFingerprint string) (TxRef, error) {
	return c.anchor(ctx, submitRequest{
		Op:          "update_status",
		ClaimKey:    claimKey,
		StatusCode:  statusCode,
		ContentHash: contentFingerprint,
	})
}

func (c *HTTPClient) anchor(ctx context.Context, req submitRequest) (TxRef, error) {
	ref, err := c.submit(ctx, req)
	if err != nil {
		return "", err
	}
	if err := c.awaitConfirmation(ctx, ref); err != nil {
		return "", err
	}
	return ref, nil
}

func (c *HTTPClient) submit(ctx context.Context, req submitRequest) (TxRef, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", ErrSubmission, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmission, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmission, err)
	}
	defer resp.Body.Close()

	var sr submitResponse
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &sr)

	switch {
	case resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusCreated:
		if sr.TxRef == "" {
			return "", fmt.Errorf("%w: gateway returned no tx_ref", ErrSubmission)
		}
		return TxRef(sr.TxRef), nil
	case resp.StatusCode == http.StatusNotFound && req.Op == "update_status":
		return "", ErrUnknownClaimIdentity
	default:
		return "", fmt.Errorf("%w: gateway status %d: %s", ErrSubmission, resp.StatusCode, sr.Error)
	}
}

// awaitConfirmation polls the transaction until the gateway reports it
// confirmed. On timeout local state must not have been touched yet; the
// engine relies on that ordering.
func (c *HTTPClient) awaitConfirmation(ctx context.Context, ref TxRef) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.txStatus(ctx, ref)
		if err == nil {
			switch status {
			case "confirmed":
				return nil
			case "failed":
				return fmt.Errorf("%w: tx %s", ErrRejected, ref)
			}
		} else if ctx.Err() != nil {
			return fmt.Errorf("%w: tx %s", ErrConfirmationTimeout, ref)
		}
		// transient poll errors fall through and retry on the next tick

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: tx %s", ErrConfirmationTimeout, ref)
		case <-ticker.C:
		}
	}
}

func (c *HTTPClient) txStatus(ctx context.Context, ref TxRef) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/transactions/"+string(ref), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gateway status %d", resp.StatusCode)
	}
	var ts txStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&ts); err != nil {
		return "", err
	}
	return ts.Status, nil
}
