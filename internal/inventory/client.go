// Package inventory is the read-through client for the remote asset
// system of record. The engine never caches asset state; every decision
// path re-reads it here. Transient transport failures are retried with
// exponential backoff inside the caller's deadline, while remote
// rejections are surfaced as conflicts and never retried.
package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iliyamo/asset-checkout-kiosk/internal/apperr"
	"github.com/iliyamo/asset-checkout-kiosk/internal/model"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBodyBytes   = 1 << 20

	// statusDeployable is the remote status assigned on checkout.
	statusDeployable = 2
)

// Client talks to a Snipe-IT compatible REST API using a bearer token.
type Client struct {
	baseURL    string
	token      string
	http       *http.Client
	maxRetries int
}

// NewClient builds a client. timeout bounds each individual HTTP
// attempt; retries counts additional attempts after the first.
func NewClient(baseURL, token string, timeout time.Duration, retries int) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		http:       &http.Client{Timeout: timeout},
		maxRetries: retries,
	}
}

// hardwareRow mirrors the remote hardware record shape.
type hardwareRow struct {
	ID       uint64 `json:"id"`
	AssetTag string `json:"asset_tag"`
	Name     string `json:"name"`
	Status   struct {
		ID         uint64 `json:"id"`
		Name       string `json:"name"`
		StatusMeta string `json:"status_meta"`
	} `json:"status_label"`
	AssignedTo *struct {
		ID   uint64 `json:"id"`
		Name string `json:"name"`
	} `json:"assigned_to"`
}

type listResponse struct {
	Total int           `json:"total"`
	Rows  []hardwareRow `json:"rows"`
}

type userRow struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	EmployeeNum string `json:"employee_num"`
	Email       string `json:"email"`
	VIP         bool   `json:"vip"`
}

type userListResponse struct {
	Total int       `json:"total"`
	Rows  []userRow `json:"rows"`
}

// actionResponse is the remote's envelope for state-changing calls. The
// API reports business rejections as HTTP 200 with status "error".
type actionResponse struct {
	Status   string `json:"status"`
	Messages any    `json:"messages"`
}

// GetAsset resolves an asset tag to its current remote state.
func (c *Client) GetAsset(ctx context.Context, tag string) (*model.AssetState, error) {
	q := url.Values{"search": {tag}, "limit": {"20"}}
	var out listResponse
	if err := c.get(ctx, "/hardware?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	for _, row := range out.Rows {
		if strings.EqualFold(row.AssetTag, tag) {
			return assetFromRow(row), nil
		}
	}
	return nil, apperr.ErrNotFound
}

// GetIdentity resolves a scanned employee credential to a directory
// record. The credential is matched against the employee number only.
func (c *Client) GetIdentity(ctx context.Context, credential string) (*model.Identity, error) {
	q := url.Values{"search": {credential}, "limit": {"20"}}
	var out userListResponse
	if err := c.get(ctx, "/users?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	for _, row := range out.Rows {
		if row.EmployeeNum == credential {
			return &model.Identity{
				ID:          row.ID,
				Name:        row.Name,
				EmployeeNum: row.EmployeeNum,
				Email:       row.Email,
				VIP:         row.VIP,
			}, nil
		}
	}
	return nil, apperr.ErrNotFound
}

// ListAssignedAssets returns the assets currently assigned to a user.
func (c *Client) ListAssignedAssets(ctx context.Context, userID uint64) ([]model.AssetState, error) {
	var out listResponse
	if err := c.get(ctx, fmt.Sprintf("/users/%d/assets", userID), &out); err != nil {
		return nil, err
	}
	assets := make([]model.AssetState, 0, len(out.Rows))
	for _, row := range out.Rows {
		assets = append(assets, *assetFromRow(row))
	}
	return assets, nil
}

// Checkout assigns the asset to a user. A remote rejection, whether a
// 409 or the API's 200-with-error envelope, is a conflict.
func (c *Client) Checkout(ctx context.Context, assetID, userID uint64, note string) error {
	payload := map[string]any{
		"status_id":        statusDeployable,
		"checkout_to_type": "user",
		"assigned_user":    userID,
		"note":             note,
	}
	return c.post(ctx, fmt.Sprintf("/hardware/%d/checkout", assetID), payload)
}

// Checkin returns the asset to the available pool.
func (c *Client) Checkin(ctx context.Context, assetID uint64, note string) error {
	return c.post(ctx, fmt.Sprintf("/hardware/%d/checkin", assetID), map[string]any{
		"note": note,
	})
}

// Transfer moves the asset between holders. The remote API has no
// native transfer, so it is a checkin followed by a checkout. A failure
// after the checkin leaves the asset available rather than assigned to
// the wrong holder; the coordinator re-reads and audits what it finds.
func (c *Client) Transfer(ctx context.Context, assetID, fromID, toID uint64, note string) error {
	if err := c.Checkin(ctx, assetID, note); err != nil {
		return err
	}
	return c.Checkout(ctx, assetID, toID, note)
}

func assetFromRow(row hardwareRow) *model.AssetState {
	a := &model.AssetState{
		ID:     row.ID,
		Tag:    row.AssetTag,
		Name:   row.Name,
		Status: model.AssetUnknown,
	}
	if row.AssignedTo != nil {
		a.HolderID = row.AssignedTo.ID
		a.HolderName = row.AssignedTo.Name
	}
	switch {
	case row.AssignedTo != nil, strings.EqualFold(row.Status.StatusMeta, "deployed"):
		a.Status = model.AssetCheckedOut
	case strings.EqualFold(row.Status.StatusMeta, "deployable"):
		a.Status = model.AssetAvailable
	}
	return a
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &apperr.RemoteUnavailable{Retryable: false, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return &apperr.RemoteUnavailable{Retryable: false, Err: err}
	}
	body, err := c.do(ctx, http.MethodPost, path, raw)
	if err != nil {
		return err
	}
	var ar actionResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return &apperr.RemoteUnavailable{Retryable: false, Err: fmt.Errorf("decoding response: %w", err)}
	}
	if strings.EqualFold(ar.Status, "error") {
		// Business rejection delivered on a 200. Treated exactly like
		// a 409: the remote state moved first, never retried.
		return apperr.ErrRemoteConflict
	}
	return nil
}

// do executes one request with the retry policy. Only transport errors
// and 5xx responses are retried; every 4xx is terminal on first sight.
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	backoff := initialBackoff
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, &apperr.RemoteUnavailable{Retryable: true, Err: ctx.Err()}
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		body, retryable, err := c.attempt(ctx, method, path, payload)
		if err == nil {
			return body, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	// Retryable attempts always wrap RemoteUnavailable, so the last
	// error already carries the right classification.
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte) (body []byte, retryable bool, err error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, false, &apperr.RemoteUnavailable{Retryable: false, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, &apperr.RemoteUnavailable{Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, true, &apperr.RemoteUnavailable{Retryable: true, Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, false, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, apperr.ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return nil, false, apperr.ErrRemoteConflict
	case resp.StatusCode >= 500:
		return nil, true, &apperr.RemoteUnavailable{
			Retryable: true,
			Err:       fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode),
		}
	default:
		return nil, false, &apperr.RemoteUnavailable{
			Retryable: false,
			Err:       fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode),
		}
	}
}
