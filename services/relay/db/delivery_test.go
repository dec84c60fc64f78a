package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDb(t *testing.T) *Queries {
	database, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	_, err = database.ExecContext(context.Background(), Schema)
	require.NoError(t, err)

	return New(database)
}

func TestDeliveryHistory(t *testing.T) {
	qry := openTestDb(t)
	ctx := context.Background()

	require.NoError(t, qry.CreateDelivery(ctx, CreateDeliveryParams{
		Source:      "2250501020304",
		Code:        "4821",
		Channel:     "WhatsApp",
		Message:     "code 4821",
		Deliveredat: 100,
	}))
	require.NoError(t, qry.CreateDelivery(ctx, CreateDeliveryParams{
		Source:      "2250501020305",
		Code:        "6946",
		Channel:     "Telegram",
		Message:     "6 9 4 6",
		Deliveredat: 200,
	}))

	count, err := qry.CountDeliveries(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	items, err := qry.ListRecentDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	// newest first
	require.Equal(t, "6946", items[0].Code)
	require.Equal(t, "4821", items[1].Code)

	items, err = qry.ListRecentDeliveries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
}
