// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package state

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/iotf/core/codec"
	"github.com/relabs-tech/iotf/iot"
)

// use POSTGRES="host=localhost port=5432 user=postgres password=docker dbname=postgres sslmode=disable"
func openStore(t *testing.T) *Store {
	dsn := os.Getenv("POSTGRES")
	if dsn == "" {
		t.Skip("POSTGRES is not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, dsn, "iotf_state_test")
	require.NoError(t, err)
	require.NoError(t, s.Clear(ctx))
	t.Cleanup(func() {
		s.db.ClearSchema(context.Background())
		s.Close()
	})
	return s
}

func event(name string, data codec.Value, at time.Time) *iot.Event {
	return &iot.Event{
		DeviceType: "sensor",
		DeviceID:   "d1",
		Event:      name,
		Format:     codec.FormatJSON,
		Data:       data,
		Timestamp:  at,
		Topic:      iot.EventTopic("sensor", "d1", name, codec.FormatJSON),
	}
}

func TestWriteRead(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	_, err := s.Read(ctx, "sensor", "d1", "psutil")
	assert.ErrorIs(t, err, ErrNotFound)

	first := codec.Object(map[string]codec.Value{"cpu": codec.Float(1.5)})
	require.NoError(t, s.Write(ctx, event("psutil", first, now)))
	second := codec.Object(map[string]codec.Value{"cpu": codec.Float(2.5), "mem": codec.Int(40)})
	require.NoError(t, s.Write(ctx, event("psutil", second, now.Add(time.Second))))

	entry, err := s.Read(ctx, "sensor", "d1", "psutil")
	require.NoError(t, err)
	assert.True(t, second.Equal(entry.Data), entry.Data.String())
	assert.Equal(t, now.Add(time.Second), entry.ReceivedAt)

	// an older event does not replace the newer one
	require.NoError(t, s.Write(ctx, event("psutil", first, now.Add(-time.Second))))
	entry, err = s.Read(ctx, "sensor", "d1", "psutil")
	require.NoError(t, err)
	assert.True(t, second.Equal(entry.Data))
}

func TestList(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Write(ctx, event("b", codec.String("x"), now)))
	require.NoError(t, s.Write(ctx, event("a", codec.Null(), now)))

	entries, err := s.List(ctx, "sensor", "d1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Event)
	assert.True(t, entries[0].Data.IsNull())
	assert.Equal(t, "b", entries[1].Event)

	entries, err = s.List(ctx, "sensor", "unknown")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
