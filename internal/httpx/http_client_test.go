package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestExternalHTTPClientTimeout(t *testing.T) {
	client := ExternalHTTPClient()
	if client == nil {
		t.Fatal("ExternalHTTPClient must not be nil")
	}
	if client != externalHTTPClient {
		t.Fatal("ExternalHTTPClient must return the shared client")
	}
	if client.Timeout != defaultExternalHTTPTimeout {
		t.Fatalf("externalHTTPClient timeout = %s, want %s", client.Timeout, defaultExternalHTTPTimeout)
	}
}

func TestConfigureExternalHTTPClient(t *testing.T) {
	original := externalHTTPClient.Timeout
	t.Cleanup(func() {
		externalHTTPClient.Timeout = original
	})

	got := ConfigureExternalHTTPClient(0)
	if got != defaultExternalHTTPTimeout {
		t.Fatalf("ConfigureExternalHTTPClient(0) = %s, want %s", got, defaultExternalHTTPTimeout)
	}

	got = ConfigureExternalHTTPClient(120)
	if got != 120*time.Second {
		t.Fatalf("ConfigureExternalHTTPClient(120) = %s, want %s", got, 120*time.Second)
	}
	if ExternalHTTPClient().Timeout != 120*time.Second {
		t.Fatalf("configured timeout = %s, want %s", ExternalHTTPClient().Timeout, 120*time.Second)
	}
}

func TestUserAgentStamped(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("User-Agent"))
	}))
	defer srv.Close()

	resp, err := ExternalHTTPClient().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("User-Agent", "custom/2.0")
	resp, err = ExternalHTTPClient().Do(req)
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	resp.Body.Close()

	if len(seen) != 2 || seen[0] != userAgent || seen[1] != "custom/2.0" {
		t.Fatalf("unexpected user agents: %v", seen)
	}
}
