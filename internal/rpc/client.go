package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/joseph-ayodele/ibansync/internal/common"
)

// UpdateRequest is the single positional parameter of the update call.
type UpdateRequest struct {
	CustomerID string `json:"CustomerID"`
	IBAN       string `json:"IBAN"`
	BIC        string `json:"BIC"`
	OwnerName  string `json:"OwnerName"`
}

type envelope struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
	ID     uint64 `json:"id"`
}

// Response is the decoded reply. Error is null or absent on success.
type Response struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// Config for the update client.
type Config struct {
	URL     string
	Method  string        // e.g. "RPC.CreateIBAN"
	Timeout time.Duration // zero keeps the transport default
}

// Client submits account updates to the remote update service.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
	nextID atomic.Uint64
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Submit sends req as a one-parameter call. It fails with a TransferError when
// the service cannot be reached or answers with something that is not a
// response object, and with a *common.RemoteUpdateError when the response
// carries a non-null error.
func (c *Client) Submit(ctx context.Context, req UpdateRequest) (*Response, error) {
	body := envelope{
		Method: c.cfg.Method,
		Params: []any{req},
		ID:     c.nextID.Add(1) - 1,
	}

	raw, status, sendErr := postEnvelope(ctx, c.http, c.cfg.URL, c.cfg.Method, body, c.logger)
	if sendErr != nil && raw == nil {
		return nil, common.NewTransferError("call "+c.cfg.Method, sendErr)
	}

	resp, err := decodeResponse(raw)
	if err != nil {
		c.logger.Error("rpc.submit.decode_error", "method", c.cfg.Method, "status", status, "error", err)
		return nil, common.NewTransferError(fmt.Sprintf("decode %s response (status %d)", c.cfg.Method, status), errors.Join(sendErr, err))
	}
	if msg, failed := resp.ErrorMessage(); failed {
		c.logger.Warn("rpc.submit.rejected", "method", c.cfg.Method, "customer_id", req.CustomerID, "remote_error", msg)
		return resp, &common.RemoteUpdateError{Method: c.cfg.Method, Params: req, Remote: msg}
	}
	if sendErr != nil {
		return nil, common.NewTransferError("call "+c.cfg.Method, sendErr)
	}

	c.logger.Info("rpc.submit.ok", "method", c.cfg.Method, "customer_id", req.CustomerID)
	return resp, nil
}

func decodeResponse(raw []byte) (*Response, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, errors.New("response is not a JSON object")
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ErrorMessage returns the remote error text and whether the error field is set.
func (r *Response) ErrorMessage() (string, bool) {
	e := bytes.TrimSpace(r.Error)
	if len(e) == 0 || bytes.Equal(e, []byte("null")) || bytes.Equal(e, []byte("false")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(e, &s); err == nil {
		return s, s != ""
	}
	return string(e), true
}
