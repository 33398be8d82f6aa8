package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/hoangnm-dev/meeting-scribe/pkg/config"
)

type gatewayRecorder struct {
	mu       sync.Mutex
	auths    []string
	payloads []map[string]any
}

func (g *gatewayRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		g.mu.Lock()
		g.auths = append(g.auths, r.Header.Get("Authorization"))
		g.payloads = append(g.payloads, payload)
		g.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}
}

func (g *gatewayRecorder) received() []map[string]any {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]map[string]any(nil), g.payloads...)
}

func TestNotifier_CompletedReachesPushAndEmail(t *testing.T) {
	push := &gatewayRecorder{}
	email := &gatewayRecorder{}
	pushSrv := httptest.NewServer(push.handler())
	defer pushSrv.Close()
	emailSrv := httptest.NewServer(email.handler())
	defer emailSrv.Close()

	n := NewNotifier(&config.NotifyConfig{
		PushGatewayURL:  pushSrv.URL,
		EmailGatewayURL: emailSrv.URL,
		APIKey:          "gw-key",
	}, nil)

	n.PipelineCompleted(context.Background(), uuid.New(), uuid.New(), "weekly sync")

	pushGot := push.received()
	if len(pushGot) != 1 || pushGot[0]["kind"] != "pipeline_completed" {
		t.Fatalf("push gateway got %+v", pushGot)
	}
	if pushGot[0]["title"] != "Meeting minutes ready" {
		t.Fatalf("unexpected push title: %v", pushGot[0]["title"])
	}

	emailGot := email.received()
	if len(emailGot) != 1 || emailGot[0]["kind"] != "pipeline_completed" {
		t.Fatalf("email gateway got %+v", emailGot)
	}
	if emailGot[0]["subject"] != "Meeting minutes ready" {
		t.Fatalf("unexpected email subject: %v", emailGot[0]["subject"])
	}

	push.mu.Lock()
	auth := push.auths[0]
	push.mu.Unlock()
	if auth != "Bearer gw-key" {
		t.Fatalf("gateway auth header missing, got %q", auth)
	}
}

func TestNotifier_FailureCarriesReasonOnBothChannels(t *testing.T) {
	push := &gatewayRecorder{}
	email := &gatewayRecorder{}
	pushSrv := httptest.NewServer(push.handler())
	defer pushSrv.Close()
	emailSrv := httptest.NewServer(email.handler())
	defer emailSrv.Close()

	n := NewNotifier(&config.NotifyConfig{
		PushGatewayURL:  pushSrv.URL,
		EmailGatewayURL: emailSrv.URL,
	}, nil)

	n.PipelineFailed(context.Background(), uuid.New(), uuid.New(), "weekly sync", "provider gave up")

	for name, rec := range map[string]*gatewayRecorder{"push": push, "email": email} {
		got := rec.received()
		if len(got) != 1 || got[0]["kind"] != "pipeline_failed" {
			t.Fatalf("%s gateway got %+v", name, got)
		}
		body, _ := got[0]["body"].(string)
		if !strings.Contains(body, "provider gave up") {
			t.Fatalf("%s body must carry the failure reason, got %q", name, body)
		}
	}
}

func TestNotifier_UnconfiguredGatewaysAreNoOps(t *testing.T) {
	n := NewNotifier(nil, nil)
	// Must not panic or attempt delivery.
	n.PipelineCompleted(context.Background(), uuid.New(), uuid.New(), "a")
	n.PipelineFailed(context.Background(), uuid.New(), uuid.New(), "a", "b")

	var nilNotifier *Notifier
	nilNotifier.PipelineCompleted(context.Background(), uuid.New(), uuid.New(), "a")
}
