package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nerrad567/sadp-fleet/internal/reconfig"
)

func TestPush(t *testing.T) {
	var (
		method, path string
		body         string
	)
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer gw.Close()

	m := New("test")
	m.WatchAllocator(&fakeAllocator{remaining: 42})
	m.Reconfigured(reconfig.Outcome{Success: true})

	if err := m.Push(context.Background(), gw.URL, "provision", map[string]string{"site": "lab"}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if method != http.MethodPut {
		t.Errorf("method = %s, want PUT", method)
	}
	if path != "/metrics/job/provision/site/lab" {
		t.Errorf("path = %s", path)
	}
	// The body is protobuf delimited; metric names appear verbatim.
	for _, name := range []string{"test_allocator_addresses_remaining", "test_campaign_reconfigurations_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("pushed body missing %s", name)
		}
	}
}

func TestPush_GatewayError(t *testing.T) {
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer gw.Close()

	if err := New("test").Push(context.Background(), gw.URL, "provision", nil); err == nil {
		t.Error("Push() to a failing gateway succeeded")
	}
}
