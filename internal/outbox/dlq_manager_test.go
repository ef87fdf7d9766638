package outbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	m := NewDLQManager(nil, 0, 0)
	require.Equal(t, 5, m.maxRetries)

	require.Equal(t, time.Minute, m.backoffDelay(1))
	require.Equal(t, 2*time.Minute, m.backoffDelay(2))
	require.Equal(t, 16*time.Minute, m.backoffDelay(5))
	require.Equal(t, time.Hour, m.backoffDelay(7))
	require.Equal(t, time.Hour, m.backoffDelay(64))
}

func TestWireFormatRoundTrip(t *testing.T) {
	frame := encodeWireFormat(513, []byte(`{"workout_id":"w1"}`))
	require.Equal(t, byte(0), frame[0])

	id, payload, err := DecodeWireFormat(frame)
	require.NoError(t, err)
	require.Equal(t, 513, id)
	require.JSONEq(t, `{"workout_id":"w1"}`, string(payload))

	_, _, err = DecodeWireFormat([]byte(`{}`))
	require.Error(t, err)
}

func TestEveryCatalogEventHasSchema(t *testing.T) {
	for eventType, entry := range schemaCatalog {
		require.NotEmpty(t, entry.Schema, eventType)
	}
}
