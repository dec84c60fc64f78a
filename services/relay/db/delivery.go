package db

import (
	"context"
)

type Delivery struct {
	ID          int64
	Source      string
	Code        string
	Channel     string
	Message     string
	Deliveredat int64
}

const createDelivery = `
INSERT INTO delivery (source, code, channel, message, deliveredat)
VALUES (?, ?, ?, ?, ?)
`

type CreateDeliveryParams struct {
	Source      string
	Code        string
	Channel     string
	Message     string
	Deliveredat int64
}

func (q *Queries) CreateDelivery(ctx context.Context, arg CreateDeliveryParams) error {
	_, err := q.db.ExecContext(ctx, createDelivery,
		arg.Source,
		arg.Code,
		arg.Channel,
		arg.Message,
		arg.Deliveredat,
	)
	return err
}

const listRecentDeliveries = `
SELECT id, source, code, channel, message, deliveredat FROM delivery
ORDER BY deliveredat DESC
LIMIT ?
`

func (q *Queries) ListRecentDeliveries(ctx context.Context, limit int64) ([]Delivery, error) {
	rows, err := q.db.QueryContext(ctx, listRecentDeliveries, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Delivery
	for rows.Next() {
		var i Delivery
		err := rows.Scan(
			&i.ID,
			&i.Source,
			&i.Code,
			&i.Channel,
			&i.Message,
			&i.Deliveredat,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countDeliveries = `
SELECT COUNT(*) FROM delivery
`

func (q *Queries) CountDeliveries(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countDeliveries)
	var count int64
	err := row.Scan(&count)
	return count, err
}
