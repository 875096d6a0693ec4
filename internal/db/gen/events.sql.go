package dbgen

import "context"

const insertDomainEvent = `-- name: InsertDomainEvent :one
INSERT INTO domain_events (topic, aggregate_id, payload)
VALUES ($1, $2, $3)
RETURNING id, topic, aggregate_id, payload, occurred_at
`

type InsertDomainEventParams struct {
	Topic       string
	AggregateID int64
	Payload     []byte
}

func (q *Queries) InsertDomainEvent(ctx context.Context, arg InsertDomainEventParams) (DomainEvent, error) {
	row := q.db.QueryRow(ctx, insertDomainEvent, arg.Topic, arg.AggregateID, arg.Payload)
	var i DomainEvent
	err := row.Scan(
		&i.ID,
		&i.Topic,
		&i.AggregateID,
		&i.Payload,
		&i.OccurredAt,
	)
	return i, err
}
