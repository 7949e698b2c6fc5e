package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewNotifierDisabledWithoutURL(t *testing.T) {
	if n := NewNotifier("", "secret"); n != nil {
		t.Error("empty URL should yield a nil notifier")
	}
}

func TestDeliverSignsPayload(t *testing.T) {
	const secret = "topsecret"

	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Egress-Signature")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, secret)
	err := n.Deliver(context.Background(), &Event{
		Type:     "connection.unhealthy",
		Provider: "openai",
	})
	if err != nil {
		t.Fatal(err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSig != want {
		t.Errorf("signature = %q, want %q", gotSig, want)
	}

	var event Event
	if err := json.Unmarshal(gotBody, &event); err != nil {
		t.Fatal(err)
	}
	if event.Type != "connection.unhealthy" || event.Provider != "openai" {
		t.Errorf("event = %+v", event)
	}
}

func TestDeliverRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "")
	if err := n.Deliver(context.Background(), &Event{Type: "pool.timeout"}); err == nil {
		t.Error("expected error for 5xx endpoint response")
	}
}
