package nocauth

import (
	"net/http"
	"testing"

	"golang.org/x/oauth2"
)

func TestConfigEnabled(t *testing.T) {
	if (Config{}).Enabled() {
		t.Fatalf("expected zero-value config to be disabled")
	}
	if !(Config{ClientID: "coordinator"}).Enabled() {
		t.Fatalf("expected config with a client ID to be enabled")
	}
}

func TestSetAuthHeaderAttachesBearerToken(t *testing.T) {
	ts := &TokenSource{src: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok-123", TokenType: "Bearer"})}

	req, _ := http.NewRequest(http.MethodPost, "http://example.invalid/noc", nil)
	if err := ts.SetAuthHeader(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := req.Header.Get("Authorization"); got != "Bearer tok-123" {
		t.Fatalf("expected Authorization header set, got %q", got)
	}
}
