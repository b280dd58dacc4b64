package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExec struct {
	sql  string
	args []any
	err  error
}

func (r *recordingExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql = sql
	r.args = args
	return pgconn.CommandTag{}, r.err
}

type untypedEvent struct{}

func (untypedEvent) EventType() string { return " " }

func TestNewEnvelope_KeepsIdentity(t *testing.T) {
	id := uuid.New()
	at := time.Date(2025, 6, 2, 14, 0, 0, 0, time.FixedZone("EDT", -4*3600))

	env, err := NewEnvelope(" bot-1 ", "conv-1", PendingEvent{
		ID:         id,
		OccurredAt: at,
		Event:      LeadCapturedV1{Name: "Jane", Email: "jane@example.com"},
	})
	require.NoError(t, err)

	assert.Equal(t, id, env.ID)
	assert.Equal(t, EventTypeLeadCaptured, env.Type)
	assert.Equal(t, "bot-1", env.BotID)
	assert.Equal(t, "conv-1", env.ConversationID)
	assert.Equal(t, at.UTC(), env.OccurredAt)

	var data LeadCapturedV1
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "jane@example.com", data.Email)
}

func TestNewEnvelope_FillsDefaults(t *testing.T) {
	fixed := time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC)
	prev := nowFunc
	nowFunc = func() time.Time { return fixed }
	defer func() { nowFunc = prev }()

	env, err := NewEnvelope("bot-1", "", PendingEvent{Event: BookingIntentV1{Timezone: "UTC"}})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, env.ID)
	assert.Equal(t, fixed, env.OccurredAt)
	assert.Empty(t, env.ConversationID)
}

func TestNewEnvelope_Validation(t *testing.T) {
	tests := []struct {
		name  string
		botID string
		event Event
	}{
		{"missing bot", "  ", LeadCapturedV1{}},
		{"nil event", "bot-1", nil},
		{"blank type", "bot-1", untypedEvent{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEnvelope(tt.botID, "", PendingEvent{Event: tt.event})
			assert.Error(t, err)
		})
	}
}

func TestInsertEnvelope(t *testing.T) {
	env, err := NewEnvelope("bot-1", "conv-9", PendingEvent{
		ID:    uuid.New(),
		Event: BookingIntentV1{Requested: "tomorrow at 3pm", Timezone: "America/New_York"},
	})
	require.NoError(t, err)

	exec := &recordingExec{}
	require.NoError(t, insertEnvelope(context.Background(), exec, env))
	assert.Contains(t, exec.sql, "ON CONFLICT (id) DO NOTHING")
	require.Len(t, exec.args, 4)
	assert.Equal(t, env.ID, exec.args[0])
	assert.Equal(t, "bot-1", exec.args[1])
	assert.Equal(t, EventTypeBookingIntent, exec.args[2])

	var stored Envelope
	require.NoError(t, json.Unmarshal(exec.args[3].([]byte), &stored))
	assert.Equal(t, env.ID, stored.ID)
	assert.Equal(t, "conv-9", stored.ConversationID)
	assert.Contains(t, string(stored.Data), "tomorrow at 3pm")
}

func TestInsertEnvelope_WrapsExecError(t *testing.T) {
	env, err := NewEnvelope("bot-1", "", PendingEvent{Event: LeadCapturedV1{}})
	require.NoError(t, err)

	dbErr := errors.New("connection reset")
	err = insertEnvelope(context.Background(), &recordingExec{err: dbErr}, env)
	assert.ErrorIs(t, err, dbErr)
}
