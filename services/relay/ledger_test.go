package relay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"otprelay-backend/lib/timezone"

	"github.com/stretchr/testify/require"
)

func ledgerPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "delivered.json")
}

func TestLedgerRoundTrip(t *testing.T) {
	path := ledgerPath(t)

	l := LoadLedger(path, DefaultRetention)
	require.Equal(t, 0, l.Len())

	l.Record("2250501020304", "4821")
	l.Record("2250501020305", "6946")
	require.NoError(t, l.Persist())

	reloaded := LoadLedger(path, DefaultRetention)
	require.Equal(t, 2, reloaded.Len())
	require.True(t, reloaded.Contains("2250501020304", "4821"))
	require.True(t, reloaded.Contains("2250501020305", "6946"))
	require.False(t, reloaded.Contains("2250501020304", "6946"))
}

func TestLedgerRecordIsIdempotent(t *testing.T) {
	l := LoadLedger(ledgerPath(t), DefaultRetention)
	l.Record("a", "111")
	l.Record("a", "111")
	require.Equal(t, 1, l.Len())
}

func TestLedgerCorruptFile(t *testing.T) {
	path := ledgerPath(t)
	require.NoError(t, os.WriteFile(path, []byte("{{{ not json"), 0600))

	l := LoadLedger(path, DefaultRetention)
	require.Equal(t, 0, l.Len())

	// and it can still persist over the corrupt file
	l.Record("a", "123")
	require.NoError(t, l.Persist())
	require.Equal(t, 1, LoadLedger(path, DefaultRetention).Len())
}

func TestLedgerLegacyFormat(t *testing.T) {
	path := ledgerPath(t)
	require.NoError(t, os.WriteFile(path, []byte(`["2250501020304|4821","x|999"]`), 0600))

	l := LoadLedger(path, DefaultRetention)
	require.Equal(t, 2, l.Len())
	require.True(t, l.Contains("2250501020304", "4821"))
	require.True(t, l.Contains("x", "999"))
}

func TestLedgerRetention(t *testing.T) {
	path := ledgerPath(t)

	stale := timezone.Now().Add(-100 * time.Hour).Unix()
	fresh := timezone.Now().Unix()
	contents := fmt.Sprintf(
		`[{"key":"old|111","seen_at":%d},{"key":"new|222","seen_at":%d}]`,
		stale, fresh,
	)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))

	l := LoadLedger(path, DefaultRetention)
	require.Equal(t, 1, l.Len())
	require.False(t, l.Contains("old", "111"))
	require.True(t, l.Contains("new", "222"))
}

func TestLedgerPersistedShape(t *testing.T) {
	path := ledgerPath(t)

	l := LoadLedger(path, DefaultRetention)
	l.Record("b", "222")
	l.Record("a", "111")
	require.NoError(t, l.Persist())

	buff, err := os.ReadFile(path)
	require.NoError(t, err)

	var entries []ledgerEntry
	require.NoError(t, json.Unmarshal(buff, &entries))
	require.Len(t, entries, 2)
	// sorted for stable diffs
	require.Equal(t, "a|111", entries[0].Key)
	require.Equal(t, "b|222", entries[1].Key)
}
