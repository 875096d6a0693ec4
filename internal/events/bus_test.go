package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	dbgen "github.com/noah-isme/backend-fruver/internal/db/gen"
	"github.com/noah-isme/backend-fruver/internal/events"
)

type stubStore struct {
	lastParams dbgen.InsertDomainEventParams
	nextID     int64
}

func (s *stubStore) InsertDomainEvent(_ context.Context, arg dbgen.InsertDomainEventParams) (dbgen.DomainEvent, error) {
	s.lastParams = arg
	s.nextID++
	return dbgen.DomainEvent{
		ID:          s.nextID,
		Topic:       arg.Topic,
		AggregateID: arg.AggregateID,
		Payload:     arg.Payload,
		OccurredAt:  pgtype.Timestamptz{Time: time.Now(), Valid: true},
	}, nil
}

type captureNotifier struct {
	events []dbgen.DomainEvent
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event dbgen.DomainEvent) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	var buf bytes.Buffer
	bus := events.Bus{
		Store:     store,
		Notifiers: []events.Notifier{notifier, events.LogNotifier{Logger: zerolog.New(&buf)}},
	}

	event, err := bus.Emit(context.Background(), events.TopicOrderCreated, 42, map[string]any{"orderId": 42})
	require.NoError(t, err)
	require.Equal(t, events.TopicOrderCreated, store.lastParams.Topic)
	require.Equal(t, int64(42), store.lastParams.AggregateID)
	require.JSONEq(t, `{"orderId":42}`, string(store.lastParams.Payload))
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)

	var logged map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logged))
	require.Equal(t, "order.created", logged["topic"])
}

func TestEmitRejectsInvalidInput(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	ctx := context.Background()

	_, err := bus.Emit(ctx, " ", 1, nil)
	require.Error(t, err)
	_, err = bus.Emit(ctx, events.TopicOrderCreated, -1, nil)
	require.Error(t, err)
	_, err = bus.Emit(ctx, events.TopicOrderCreated, 1, "{not json")
	require.Error(t, err)

	var nilBus *events.Bus
	_, err = nilBus.Emit(ctx, events.TopicOrderCreated, 1, nil)
	require.Error(t, err)
}

func TestNotifierErrorsAreJoined(t *testing.T) {
	boom := errors.New("boom")
	store := &stubStore{}
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{&captureNotifier{err: boom}}}
	ev, err := bus.Emit(context.Background(), events.TopicOrderPricesReconciled, 3, nil)
	require.ErrorIs(t, err, boom)
	require.Equal(t, int64(1), ev.ID)
	require.JSONEq(t, `{}`, string(store.lastParams.Payload))

	txStore := &stubStore{}
	scoped := bus.WithStore(txStore)
	_, _ = scoped.Emit(context.Background(), events.TopicOrderCreated, 5, nil)
	require.Equal(t, int64(5), txStore.lastParams.AggregateID)
	require.Equal(t, int64(3), store.lastParams.AggregateID)
}
