package httpkit

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewClientSetsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	client := NewClient(WithUserAgent("test-agent/1.0"))
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	DrainAndClose(resp.Body, 1024)

	if gotUA != "test-agent/1.0" {
		t.Errorf("User-Agent = %q, want test-agent/1.0", gotUA)
	}
}

func TestNewClientPreservesExplicitUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	client := NewClient()
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("User-Agent", "custom/2.0")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	DrainAndClose(resp.Body, 1024)

	if gotUA != "custom/2.0" {
		t.Errorf("User-Agent = %q, want custom/2.0", gotUA)
	}
}

func TestWithTimeout(t *testing.T) {
	client := NewClient(WithTimeout(5 * time.Second))
	if client.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", client.Timeout)
	}
}

func TestReadErrorBody(t *testing.T) {
	body := io.NopCloser(strings.NewReader("upstream exploded"))
	got := ReadErrorBody(body, 1024)
	if got != "upstream exploded" {
		t.Errorf("ReadErrorBody = %q", got)
	}
}

func TestReadErrorBodyNil(t *testing.T) {
	if got := ReadErrorBody(nil, 1024); got != "" {
		t.Errorf("ReadErrorBody(nil) = %q, want empty", got)
	}
}

func TestReadErrorBodyLimit(t *testing.T) {
	body := io.NopCloser(strings.NewReader(strings.Repeat("x", 100)))
	got := ReadErrorBody(body, 10)
	if len(got) != 10 {
		t.Errorf("len = %d, want 10", len(got))
	}
}
