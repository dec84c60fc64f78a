package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"otprelay-backend/lib/notify"
	"otprelay-backend/lib/scrapers/smspanel"
	"otprelay-backend/lib/telemetry"

	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	payload any
	err     error
	calls   int
}

func (f *fakeFetcher) FetchWindow(ctx context.Context, w smspanel.Window) (any, error) {
	f.calls++
	return f.payload, f.err
}

type fakeNotifier struct {
	calls    int
	failures int
	messages []notify.Message
}

func (f *fakeNotifier) Notify(ctx context.Context, msg notify.Message) error {
	f.calls++
	if f.calls <= f.failures {
		return notify.ErrDeliveryFailed
	}
	f.messages = append(f.messages, msg)
	return nil
}

func rowsPayload(t *testing.T, rows string) any {
	var payload any
	require.NoError(t, json.Unmarshal([]byte(rows), &payload))
	return payload
}

func newTestService(t *testing.T, fetcher Fetcher, notifier notify.Notifier) *Service {
	ledger := LoadLedger(filepath.Join(t.TempDir(), "delivered.json"), DefaultRetention)
	return NewService(fetcher, ledger, notifier, nil, Options{})
}

func TestPollOnceDeliversNewCodes(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:relay")
	defer cleanup()

	fetcher := &fakeFetcher{payload: rowsPayload(t, `[
		["2024-05-01 10:22:31", "range-a", "2250501020304", "WhatsApp", "Your OTP is 482913, valid 5 min"],
		["2024-05-01 10:23:00", "range-a", "2250501020305", "Telegram", "no digits in here"]
	]`)}
	notifier := &fakeNotifier{}
	service := newTestService(t, fetcher, notifier)

	require.NoError(t, service.PollOnce(context.Background()))
	require.Equal(t, 1, notifier.calls)
	require.Equal(t, "482913", notifier.messages[0].Code)
	require.Equal(t, "2250501020304", notifier.messages[0].Source)
	require.True(t, service.ledger.Contains("2250501020304", "482913"))
}

func TestPollOnceIsIdempotent(t *testing.T) {
	fetcher := &fakeFetcher{payload: rowsPayload(t, `[
		["2024-05-01 10:22:31", "range-a", "2250501020304", "WhatsApp", "code 4821"]
	]`)}
	notifier := &fakeNotifier{}
	service := newTestService(t, fetcher, notifier)

	ctx := context.Background()
	require.NoError(t, service.PollOnce(ctx))
	require.NoError(t, service.PollOnce(ctx))
	require.NoError(t, service.PollOnce(ctx))
	// the same (source, code) pair is delivered exactly once
	require.Equal(t, 1, notifier.calls)
}

func TestFailedDeliveryLeavesLedgerAndRetries(t *testing.T) {
	fetcher := &fakeFetcher{payload: rowsPayload(t, `[
		["2024-05-01 10:22:31", "range-a", "2250501020304", "WhatsApp", "code 4821"]
	]`)}
	notifier := &fakeNotifier{failures: 1}
	service := newTestService(t, fetcher, notifier)

	ctx := context.Background()
	err := service.PollOnce(ctx)
	require.Error(t, err)
	require.Equal(t, 1, notifier.calls)
	require.False(t, service.ledger.Contains("2250501020304", "4821"))

	// the next poll retries the same code and succeeds
	require.NoError(t, service.PollOnce(ctx))
	require.Equal(t, 2, notifier.calls)
	require.True(t, service.ledger.Contains("2250501020304", "4821"))
}

func TestDeliveryRetryWithinOnePoll(t *testing.T) {
	// first attempt dies in transport, second succeeds; the ledger is
	// updated once while the destination saw two requests
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("content-type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer server.Close()

	telegram := notify.NewTelegram(notify.TelegramOptions{
		Token:    "t",
		ChatId:   "42",
		BaseUrl:  server.URL,
		Attempts: 3,
		Backoff:  time.Millisecond,
	})

	fetcher := &fakeFetcher{payload: rowsPayload(t, `[
		["2024-05-01 10:22:31", "range-a", "2250501020304", "WhatsApp", "code 4821"]
	]`)}
	service := newTestService(t, fetcher, telegram)

	require.NoError(t, service.PollOnce(context.Background()))
	require.Equal(t, 2, attempts)
	require.Equal(t, 1, service.ledger.Len())
}

func TestPollOnceSurfacesFetchError(t *testing.T) {
	fetcher := &fakeFetcher{err: smspanel.ErrTransient}
	notifier := &fakeNotifier{}
	service := newTestService(t, fetcher, notifier)

	err := service.PollOnce(context.Background())
	require.ErrorIs(t, err, smspanel.ErrTransient)
	require.Equal(t, 0, notifier.calls)
}

func TestMirrorFailureDoesNotBlockDelivery(t *testing.T) {
	fetcher := &fakeFetcher{payload: rowsPayload(t, `[
		["2024-05-01 10:22:31", "range-a", "2250501020304", "WhatsApp", "code 4821"]
	]`)}
	notifier := &fakeNotifier{}
	mirror := &fakeNotifier{failures: 100}
	service := newTestService(t, fetcher, notifier)
	service.SetMirror(mirror)

	require.NoError(t, service.PollOnce(context.Background()))
	require.Equal(t, 1, notifier.calls)
	require.Equal(t, 1, mirror.calls)
	require.True(t, service.ledger.Contains("2250501020304", "4821"))
}
