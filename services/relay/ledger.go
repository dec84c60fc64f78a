package relay

import (
	"encoding/json"
	"log/slog"
	"os"
	"slices"
	"time"

	"otprelay-backend/lib/timezone"
)

// codes are only worth deduplicating over a short horizon, entries
// older than this are dropped so the ledger can't grow forever
const DefaultRetention = 72 * time.Hour

type ledgerEntry struct {
	Key    string `json:"key"`
	SeenAt int64  `json:"seen_at"`
}

// Ledger is a persistent set of source|code pairs that were already
// delivered. It is loaded once at startup and rewritten after every
// confirmed delivery; the driver loop is its only owner so no locking
// is involved.
type Ledger struct {
	path      string
	retention time.Duration
	entries   map[string]time.Time
}

func deliveryKey(source, code string) string {
	return source + "|" + code
}

// LoadLedger reads the ledger file at `path`. An absent or corrupt
// file yields an empty ledger rather than an error, losing dedup
// history is preferable to refusing to start.
func LoadLedger(path string, retention time.Duration) *Ledger {
	l := &Ledger{
		path:      path,
		retention: retention,
		entries:   map[string]time.Time{},
	}

	buff, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return l
	}
	if err != nil {
		slog.Warn("failed to read ledger file, starting empty", "path", path, "err", err)
		return l
	}

	var raw []json.RawMessage
	err = json.Unmarshal(buff, &raw)
	if err != nil {
		slog.Warn("ledger file is corrupt, starting empty", "path", path, "err", err)
		return l
	}

	now := timezone.Now()
	for _, item := range raw {
		var entry ledgerEntry
		if err := json.Unmarshal(item, &entry); err == nil && entry.Key != "" {
			l.entries[entry.Key] = time.Unix(entry.SeenAt, 0)
			continue
		}
		// ledgers written before retention tracking hold bare strings
		var key string
		if err := json.Unmarshal(item, &key); err == nil && key != "" {
			l.entries[key] = now
		}
	}

	l.prune(now)
	return l
}

func (l *Ledger) prune(now time.Time) {
	if l.retention <= 0 {
		return
	}
	for key, seen := range l.entries {
		if now.Sub(seen) > l.retention {
			delete(l.entries, key)
		}
	}
}

func (l *Ledger) Contains(source, code string) bool {
	_, ok := l.entries[deliveryKey(source, code)]
	return ok
}

// Record marks the pair as delivered. Only call this after the
// notifier confirmed the delivery.
func (l *Ledger) Record(source, code string) {
	l.entries[deliveryKey(source, code)] = timezone.Now()
}

func (l *Ledger) Len() int {
	return len(l.entries)
}

// Keys returns the ledger contents sorted for stable listing.
func (l *Ledger) Keys() []string {
	keys := make([]string, 0, len(l.entries))
	for key := range l.entries {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Persist rewrites the backing file. The write goes to a temporary
// sibling first and is moved into place, a crash mid-write leaves the
// previous contents intact.
func (l *Ledger) Persist() error {
	l.prune(timezone.Now())

	entries := make([]ledgerEntry, 0, len(l.entries))
	for key, seen := range l.entries {
		entries = append(entries, ledgerEntry{Key: key, SeenAt: seen.Unix()})
	}
	slices.SortFunc(entries, func(a, b ledgerEntry) int {
		if a.Key < b.Key {
			return -1
		}
		if a.Key > b.Key {
			return 1
		}
		return 0
	})

	buff, err := json.Marshal(entries)
	if err != nil {
		return err
	}

	tmp := l.path + ".tmp"
	err = os.WriteFile(tmp, buff, 0600)
	if err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}
