package notifications

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lockedBuffer lets the test read what Stream writes from another goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSSEBroker_StreamsPublishedEvents(t *testing.T) {
	broker := NewSSEBroker()
	broker.heartbeat = 20 * time.Millisecond

	client := broker.Subscribe()
	assert.Equal(t, 1, broker.ClientCount())

	out := &lockedBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- broker.Stream(context.Background(), client, bufio.NewWriter(out))
	}()

	broker.Publish("audit", map[string]any{"action": "POST /api/topics"})

	assert.Eventually(t, func() bool {
		s := out.String()
		return strings.Contains(s, "event: audit\ndata: {\"action\":\"POST /api/topics\"}\n\n") &&
			strings.Contains(s, ": heartbeat\n\n")
	}, testEventuallyTimeout, testPollInterval)
	assert.True(t, strings.HasPrefix(out.String(), ": connected\n\n"))

	broker.Unsubscribe(client)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(testEventuallyTimeout):
		t.Fatal("stream did not stop after unsubscribe")
	}
	assert.Zero(t, broker.ClientCount())
}

func TestSSEBroker_SlowClientDropsInsteadOfBlocking(t *testing.T) {
	broker := NewSSEBroker()
	client := broker.Subscribe()

	for i := 0; i < sseBufferSize+10; i++ {
		broker.Publish("analytics", i)
	}
	assert.Len(t, client.Events(), sseBufferSize)

	broker.Close()
	assert.Zero(t, broker.ClientCount())

	err := broker.Stream(context.Background(), client, bufio.NewWriter(&bytes.Buffer{}))
	require.NoError(t, err)
}
