package target

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func do(t *testing.T, method, url, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func TestStatusEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	for _, code := range []int{200, 201, 404, 500, 503} {
		resp, _ := do(t, http.MethodGet, ts.URL+"/status/"+strconv.Itoa(code), "")
		if resp.StatusCode != code {
			t.Errorf("GET /status/%d: got %d", code, resp.StatusCode)
		}
	}

	resp, _ := do(t, http.MethodGet, ts.URL+"/status/abc", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad code, got %d", resp.StatusCode)
	}
}

func TestDelayEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	start := time.Now()
	resp, body := do(t, http.MethodGet, ts.URL+"/delay/50", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("expected the response to be delayed")
	}
	if body != "delayed 50ms" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestEchoEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := do(t, http.MethodPost, ts.URL+"/echo", `{"a":1}`)
	if resp.StatusCode != http.StatusOK || body != `{"a":1}` {
		t.Errorf("unexpected echo %d %q", resp.StatusCode, body)
	}
	if resp, _ := do(t, http.MethodGet, ts.URL+"/echo", ""); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET /echo, got %d", resp.StatusCode)
	}
}

func TestKeyValue(t *testing.T) {
	s, ts := newTestServer(t)

	resp, _ := do(t, http.MethodGet, ts.URL+"/kv/k1", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 before put, got %d", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodPut, ts.URL+"/kv/k1", "v1")
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("expected 201 on first put, got %d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPut, ts.URL+"/kv/k1", "v2")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 on overwrite, got %d", resp.StatusCode)
	}

	resp, body := do(t, http.MethodGet, ts.URL+"/kv/k1", "")
	var got struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", body, err)
	}
	if resp.StatusCode != http.StatusOK || got.Key != "k1" || got.Value != "v2" {
		t.Errorf("unexpected get %d %+v", resp.StatusCode, got)
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 key, got %d", s.Len())
	}

	resp, _ = do(t, http.MethodDelete, ts.URL+"/kv/k1", "")
	if resp.StatusCode != http.StatusNoContent || s.Len() != 0 {
		t.Errorf("expected delete to empty the store, got %d with %d keys", resp.StatusCode, s.Len())
	}
	if s.Requests() != 6 {
		t.Errorf("expected 6 requests counted, got %d", s.Requests())
	}
}
