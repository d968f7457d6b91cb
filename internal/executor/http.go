package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"autopilot/internal/task"
	logx "autopilot/pkg/logx"
)

// HTTPCollaborator POSTs requests as JSON to <endpoint>/<category>/<action>
// and expects a JSON object back.
//
// Network errors, 429 and 5xx responses are transient; other non-2xx
// responses are permanent failures.
type HTTPCollaborator struct {
	endpoint string
	token    string
	client   *http.Client
	log      logx.Logger
}

const maxResponseBytes = 4 << 20

func NewHTTPCollaborator(endpoint, token string, timeout time.Duration, log logx.Logger) (*HTTPCollaborator, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("collaborator endpoint %q: must be an absolute URL", endpoint)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &HTTPCollaborator{
		endpoint: strings.TrimRight(u.String(), "/"),
		token:    token,
		client:   &http.Client{Timeout: timeout},
		log:      log.With(logx.String("comp", "collaborator")),
	}, nil
}

func (h *HTTPCollaborator) Invoke(ctx context.Context, req Request) (map[string]any, error) {
	body, err := json.Marshal(map[string]any{"params": req.Params})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	target := h.endpoint + "/" + url.PathEscape(string(req.Category)) + "/" + url.PathEscape(req.Action)
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "application/json")
	if h.token != "" {
		hreq.Header.Set("Authorization", "Bearer "+h.token)
	}

	began := time.Now()
	resp, err := h.client.Do(hreq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, task.Transient(fmt.Errorf("%s %s: %w", req.Category, req.Action, err))
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, task.Transient(fmt.Errorf("read response: %w", err))
	}
	h.log.Debug("collaborator call", logx.String("url", target), logx.Int("status", resp.StatusCode), logx.Duration("took", time.Since(began)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("%s %s: %s: %s", req.Category, req.Action, resp.Status, snippet(raw))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, task.Transient(err)
		}
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
