package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"autopilot/internal/task"
	logx "autopilot/pkg/logx"
)

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func TestHTTPCollaborator(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/content_creation/blog":
			if r.Method != http.MethodPost || r.Header.Get("Authorization") != "Bearer s3cret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			var body struct {
				Params map[string]any `json:"params"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			_ = json.NewEncoder(w).Encode(map[string]any{"title": body.Params["topic"]})
		case "/publishing/pending":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/publishing/social":
			w.WriteHeader(http.StatusTooManyRequests)
		case "/monetization/sales_report":
			http.Error(w, "bad period", http.StatusBadRequest)
		case "/maintenance/empty":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	c, err := NewHTTPCollaborator(srv.URL+"/", "s3cret", 2*time.Second, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	out, err := c.Invoke(ctx, Request{Category: task.ContentCreation, Action: "blog", Params: task.Params{"topic": "focus"}})
	if err != nil || out["title"] != "focus" {
		t.Fatalf("out=%v err=%v", out, err)
	}
	if _, err := c.Invoke(ctx, Request{Category: task.Publishing, Action: "pending"}); !task.IsTransient(err) {
		t.Fatalf("503 should be transient, got %v", err)
	}
	if _, err := c.Invoke(ctx, Request{Category: task.Publishing, Action: "social"}); !task.IsTransient(err) {
		t.Fatalf("429 should be transient, got %v", err)
	}
	_, err = c.Invoke(ctx, Request{Category: task.Monetization, Action: "sales_report"})
	if err == nil || task.IsTransient(err) || !strings.Contains(err.Error(), "bad period") {
		t.Fatalf("400 should be permanent, got %v", err)
	}
	out, err = c.Invoke(ctx, Request{Category: task.Maintenance, Action: "empty"})
	if err != nil || len(out) != 0 {
		t.Fatalf("empty body: out=%v err=%v", out, err)
	}
}

func TestHTTPCollaboratorNetworkErrorIsTransient(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c, err := NewHTTPCollaborator(url, "", time.Second, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Invoke(context.Background(), Request{Category: task.Publishing, Action: "pending"}); !task.IsTransient(err) {
		t.Fatalf("want transient, got %v", err)
	}
}

func TestHTTPCollaboratorRejectsRelativeEndpoint(t *testing.T) {
	t.Parallel()
	if _, err := NewHTTPCollaborator("localhost/api", "", time.Second, logx.Nop()); err == nil {
		t.Fatal("expected error")
	}
}

func TestDryRunPending(t *testing.T) {
	t.Parallel()
	d := NewDryRun(logx.Nop())
	out, err := d.Invoke(context.Background(), Request{Category: task.ContentCreation, Action: ActionPendingContent})
	if err != nil {
		t.Fatal(err)
	}
	if items, ok := out["items"].([]any); !ok || len(items) != 0 {
		t.Fatalf("items %v", out["items"])
	}
	out, _ = d.Invoke(context.Background(), Request{Category: task.Publishing, Action: "social"})
	if out["simulated"] != true || out["action"] != "social" {
		t.Fatalf("out %v", out)
	}
}
