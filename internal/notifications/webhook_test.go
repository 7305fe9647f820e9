package notifications

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/kjannette/trahn-agent/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend_NoWebhook(t *testing.T) {
	s := NewSender("", "TestBot", zerolog.Nop())
	assert.False(t, s.Enabled())
	s.Send("hello from test")
}

func TestSend_SlackFormat(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSender(srv.URL, "TestBot", zerolog.Nop())
	require.True(t, s.Enabled())
	s.Send("Swap complete: 15.00 USDC → FOO")

	assert.Equal(t, "TestBot", received["username"])
	assert.Equal(t, "`[TestBot] Swap complete: 15.00 USDC → FOO`", received["text"])
}

func TestSend_DiscordFormat(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSender(srv.URL+"/discord/webhook", "TrahnAgent", zerolog.Nop())
	s.Send("Balance: $102.80")

	assert.Equal(t, "[TrahnAgent] Balance: $102.80", received["content"])
	assert.Empty(t, received["text"])
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordingNotifier) Send(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func TestForwarder_FiltersTypes(t *testing.T) {
	n := &recordingNotifier{}
	f := NewForwarder(n, 8, zerolog.Nop())

	f.Publish(models.LogEntry{Type: models.LogPrompt, Content: "prompt text"})
	f.Publish(models.LogEntry{Type: models.LogTrade, Content: "Executing swap: 15.00 USDC → FOO"})
	f.Publish(models.LogEntry{Type: models.LogResponse, Content: "long response"})
	f.Publish(models.LogEntry{Type: models.LogError, Content: "Cycle error: boom"})
	f.Close()

	require.Len(t, n.msgs, 2)
	assert.Contains(t, n.msgs[0], "Executing swap")
	assert.Contains(t, n.msgs[1], "Cycle error: boom")
}

func TestMulti(t *testing.T) {
	a, b := &recordingNotifier{}, &recordingNotifier{}
	Multi{a, b}.Send("hi")
	assert.Equal(t, []string{"hi"}, a.msgs)
	assert.Equal(t, []string{"hi"}, b.msgs)
}

type fakeTelegramAPI struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeTelegramAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, f.err
}

func TestTelegram_Send(t *testing.T) {
	api := &fakeTelegramAPI{}
	tg := &Telegram{api: api, chatID: 42, log: zerolog.Nop()}
	tg.Send("Agent started")

	require.Len(t, api.sent, 1)
	assert.Equal(t, int64(42), api.sent[0].ChatID)
	assert.Equal(t, "Agent started", api.sent[0].Text)

	api.err = errors.New("blocked by user")
	assert.NotPanics(t, func() { tg.Send("again") })
}

func TestNewTelegram_RequiresChat(t *testing.T) {
	_, err := NewTelegram("token", 0, zerolog.Nop())
	assert.Error(t, err)
}
