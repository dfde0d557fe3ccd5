package turnstile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_Verify_Success(t *testing.T) {
	var gotSecret, gotResponse string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Secret   string `json:"secret"`
			Response string `json:"response"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		gotSecret = body.Secret
		gotResponse = body.Response
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	client := NewClient("secret-key", nil).WithVerifyURL(srv.URL)

	ok, err := client.Verify(context.Background(), "client-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected success")
	}
	if gotSecret != "secret-key" || gotResponse != "client-token" {
		t.Fatalf("unexpected exchange payload: secret=%q response=%q", gotSecret, gotResponse)
	}
}

func TestClient_Verify_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false})
	}))
	defer srv.Close()

	client := NewClient("secret-key", nil).WithVerifyURL(srv.URL)

	ok, err := client.Verify(context.Background(), "bad-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected failure")
	}
}

func TestClient_Verify_MissingSecret(t *testing.T) {
	client := NewClient("", nil)
	if _, err := client.Verify(context.Background(), "token"); err == nil {
		t.Fatal("expected error when secret key is absent")
	}
}
