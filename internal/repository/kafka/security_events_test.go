package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/NordCoder/authd/internal/domain/auth"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestSecurityEvents_PublishRefreshReuse(t *testing.T) {
	w := &fakeWriter{}
	ev := NewSecurityEventsKafka(newProducer(w, "auth.security"))

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	err := ev.ReuseDetected(context.Background(), auth.ReuseEvent{
		TokenID:    "t1",
		FamilyID:   "f1",
		UserID:     "u1",
		PrevStatus: auth.StatusRotated,
		Revoked:    3,
		DetectedAt: at,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("u1"), w.msgs[0].Key)

	var got structpb.Struct
	require.NoError(t, proto.Unmarshal(w.msgs[0].Value, &got))
	m := got.AsMap()
	assert.Equal(t, EventRefreshReuse, m["type"])
	assert.Equal(t, "t1", m["token_id"])
	assert.Equal(t, "rotated", m["prev_status"])
	assert.EqualValues(t, 3, m["revoked"])
	assert.Equal(t, at.Format(time.RFC3339Nano), m["detected_at"])
}

func TestSecurityEvents_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	ev := NewSecurityEventsKafka(newProducer(w, "auth.security"))

	err := ev.PublishRefreshReuse(context.Background(), auth.ReuseEvent{UserID: "u1"})
	assert.Error(t, err)
}
