package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNote() Notification {
	return Notification{
		EventID:   "evt-1",
		EventType: "drawdown_breach",
		Timestamp: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
		Fields:    map[string]any{"severity": "high", "drawdown": 0.17},
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottoken/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	require.NoError(t, notifier.Notify(context.Background(), testNote()))

	assert.Equal(t, "chat", received["chat_id"])
	assert.Contains(t, received["text"], "Type: drawdown_breach")
	assert.Contains(t, received["text"], "ID: evt-1")
}

func TestTelegramNotifierRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "chat not found"})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	err := notifier.Notify(context.Background(), testNote())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegramNotifierStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	assert.Error(t, notifier.Notify(context.Background(), testNote()))
}

func TestRenderMessageSortsFields(t *testing.T) {
	text := renderMessage(testNote())

	assert.True(t, strings.HasPrefix(text, "[ARM-AI Risk Event]\n"))
	assert.Contains(t, text, "Time: 2024-05-01T09:30:00Z UTC")
	assert.Less(t, strings.Index(text, "drawdown: 0.17"), strings.Index(text, "severity: high"))
}
