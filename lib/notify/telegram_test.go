package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEscapeMarkdownV2(t *testing.T) {
	testCases := []struct {
		in       string
		expected string
	}{
		{"plain text", "plain text"},
		{"a_b*c", `a\_b\*c`},
		{"[link](x)", `\[link\]\(x\)`},
		{"1+1=2!", `1\+1\=2\!`},
		{"use code 12-34.", `use code 12\-34\.`},
		{"a\\b", `a\\b`},
		{"~`>#|{}<", "\\~\\`\\>\\#\\|\\{\\}\\<"},
	}
	for _, test := range testCases {
		require.Equal(t, test.expected, EscapeMarkdownV2(test.in))
	}
}

func TestFormatMessageEscapesBody(t *testing.T) {
	rendered := formatMessage(Message{
		Time:    "2024-05-01 10:22:31",
		Source:  "2250501020304",
		Channel: "WhatsApp",
		Code:    "4821",
		Text:    "Your code is 4821. Don't share it!",
	})
	require.Contains(t, rendered, "`4821`")
	require.Contains(t, rendered, `4821\. Don't share it\!`)
	require.NotContains(t, rendered, "it!\n")
}

type fakeBotApi struct {
	mu       sync.Mutex
	calls    int
	failures int
}

func (f *fakeBotApi) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls++
		if f.calls <= f.failures {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `{"ok":false,"description":"upstream hiccup"}`)
			return
		}
		w.Header().Set("content-type", "application/json")
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":1}}`)
	})
}

func newTestTelegram(server *httptest.Server) *Telegram {
	return NewTelegram(TelegramOptions{
		Token:    "test-token",
		ChatId:   "42",
		BaseUrl:  server.URL,
		Attempts: 3,
		Backoff:  time.Millisecond,
	})
}

func TestTelegramNotify(t *testing.T) {
	api := &fakeBotApi{}
	server := httptest.NewServer(api.handler())
	defer server.Close()

	err := newTestTelegram(server).Notify(context.Background(), Message{Code: "4821"})
	require.NoError(t, err)
	require.Equal(t, 1, api.calls)
}

func TestTelegramRetriesTransientFailure(t *testing.T) {
	api := &fakeBotApi{failures: 1}
	server := httptest.NewServer(api.handler())
	defer server.Close()

	err := newTestTelegram(server).Notify(context.Background(), Message{Code: "4821"})
	require.NoError(t, err)
	require.Equal(t, 2, api.calls)
}

func TestTelegramExhaustsRetries(t *testing.T) {
	api := &fakeBotApi{failures: 100}
	server := httptest.NewServer(api.handler())
	defer server.Close()

	err := newTestTelegram(server).Notify(context.Background(), Message{Code: "4821"})
	require.ErrorIs(t, err, ErrDeliveryFailed)
	require.Equal(t, 3, api.calls)
}

func TestTelegramRejectedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		fmt.Fprint(w, `{"ok":false,"description":"chat not found"}`)
	}))
	defer server.Close()

	err := newTestTelegram(server).Notify(context.Background(), Message{Code: "4821"})
	require.ErrorIs(t, err, ErrDeliveryFailed)
	require.ErrorContains(t, err, "chat not found")
}
