package state

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestMirror creates a mirror connected to a miniredis instance
func setupTestMirror(t *testing.T) (*RedisMirror, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	m, err := NewRedisMirror(&redis.Options{Addr: mr.Addr()}, "test-session")
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	return m, mr
}

func TestNewRedisMirror(t *testing.T) {
	t.Run("connects", func(t *testing.T) {
		m, _ := setupTestMirror(t)
		assert.NoError(t, m.Ping(context.Background()))
	})

	t.Run("rejects empty session", func(t *testing.T) {
		_, err := NewRedisMirror(&redis.Options{Addr: "localhost:6379"}, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "session cannot be empty")
	})
}

func TestRedisMirrorAppendsToLog(t *testing.T) {
	m, mr := setupTestMirror(t)
	s := New(WithMirror(m))

	s.Update("topic", "AI safety", "Host")
	s.RecordMessage(map[string]any{"sender": "A", "content": "hi"})

	items, err := mr.List(LogKey("test-session"))
	require.NoError(t, err)
	assert.Len(t, items, 2)

	recs, err := m.Replay(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, RecordUpdate, recs[0].Kind)
	assert.Equal(t, "topic", recs[0].Key)
	assert.Equal(t, "AI safety", recs[0].Value)
	assert.Equal(t, "Host", recs[0].Writer)
	assert.Equal(t, RecordMessage, recs[1].Kind)
	assert.Equal(t, 2, recs[1].Seq)
}

func TestRedisMirrorReplayEmpty(t *testing.T) {
	m, _ := setupTestMirror(t)
	recs, err := m.Replay(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRedisMirrorSubscribe(t *testing.T) {
	m, _ := setupTestMirror(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := m.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	s := New(WithMirror(m))
	s.Update("k", "v", "w")

	select {
	case rec := <-sub.Events():
		assert.Equal(t, "k", rec.Key)
		assert.Equal(t, "v", rec.Value)
	case <-ctx.Done():
		t.Fatal("timed out waiting for mirrored record")
	}
}

func TestRedisMirrorFailureIsAbsorbed(t *testing.T) {
	m, mr := setupTestMirror(t)
	mr.Close()

	s := New(WithMirror(m), WithMirrorTimeout(200*time.Millisecond))
	s.Update("k", "v", "w")
	assert.Equal(t, "v", s.Get("k", nil))
}
