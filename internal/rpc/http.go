package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/ibansync/internal/common"
)

// maxResponseBytes caps a JSON-RPC reply. The update service answers with a small envelope.
var maxResponseBytes int64 = 1 << 20

var errResponseTooLarge = errors.New("response exceeds size limit")

// postEnvelope posts one JSON-RPC envelope for method and returns the raw reply.
// A non-2xx status is returned as an error together with the body that came with it;
// an oversized or unreadable reply comes back as an error with no body.
func postEnvelope(ctx context.Context, client *http.Client, url, method string, envelope any, logger *slog.Logger) ([]byte, int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}

	reqID := uuid.New().String()
	start := time.Now()
	log := logger.With("req_id", reqID, "method", method)

	bs, err := json.Marshal(envelope)
	if err != nil {
		log.Error("rpc.http.encode_error", "error", err)
		return nil, 0, fmt.Errorf("encode %s envelope: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		log.Error("rpc.http.build_request_error", "error", err)
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	log.Info("rpc.http.request",
		"run_id", common.RunIDFromContext(ctx),
		"file", common.FileFromContext(ctx),
		"url", url,
		"content_length", len(bs),
	)

	resp, err := client.Do(req)
	if err != nil {
		log.Error("rpc.http.send_error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, 0, err
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			log.Warn("rpc.http.response_body_close_error", "error", err)
		}
	}(resp.Body)

	// One byte past the limit tells an exact fit apart from a truncated reply.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		log.Error("rpc.http.read_error", "status", resp.StatusCode, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, resp.StatusCode, fmt.Errorf("read %s response: %w", method, err)
	}
	if int64(len(raw)) > maxResponseBytes {
		log.Error("rpc.http.response_too_large", "status", resp.StatusCode, "limit", maxResponseBytes)
		return nil, resp.StatusCode, fmt.Errorf("%s: %w (%d bytes)", method, errResponseTooLarge, maxResponseBytes)
	}

	log.Info("rpc.http.response",
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return raw, resp.StatusCode, fmt.Errorf("non-2xx status: %d", resp.StatusCode)
	}
	return raw, resp.StatusCode, nil
}
