package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordingNotifier struct {
	calls int
	err   error
}

func (n *recordingNotifier) Notify(ctx context.Context, subject, body string) error {
	n.calls++
	return n.err
}

func TestMultiNotifiesAllAndReturnsFirstError(t *testing.T) {
	firstErr := errors.New("first failure")
	a := &recordingNotifier{err: firstErr}
	b := &recordingNotifier{err: errors.New("second failure")}
	c := &recordingNotifier{}

	err := Multi{a, b, c}.Notify(context.Background(), "subject", "body")
	if !errors.Is(err, firstErr) {
		t.Errorf("err = %v, want first failure", err)
	}
	if a.calls != 1 || b.calls != 1 || c.calls != 1 {
		t.Errorf("calls = %d/%d/%d, want every notifier called once", a.calls, b.calls, c.calls)
	}
}

func TestNopDiscards(t *testing.T) {
	if err := (Nop{}).Notify(context.Background(), "subject", "body"); err != nil {
		t.Errorf("Nop returned %v", err)
	}
}

func TestDiscordPayload(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewDiscord(srv.URL).Notify(context.Background(), "Hard stop", "daily loss cap hit"); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	content := got["content"]
	if !strings.HasPrefix(content, "**Hard stop**\n") {
		t.Errorf("content = %q, want bold subject on first line", content)
	}
	if !strings.Contains(content, "daily loss cap hit") {
		t.Errorf("content = %q, want body included", content)
	}
}

func TestDiscordErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid webhook", http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewDiscord(srv.URL).Notify(context.Background(), "s", "b")
	if err == nil {
		t.Fatal("expected error from HTTP 401")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("err = %v, want status code included", err)
	}
}
