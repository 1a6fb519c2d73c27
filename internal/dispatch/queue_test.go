package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-email-verification/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingSender records jobs and waits on release before returning.
type blockingSender struct {
	mu      sync.Mutex
	sent    []string
	release chan struct{}
}

func (s *blockingSender) Send(_ context.Context, job domain.DispatchJob) error {
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, job.RecordID)
	return nil
}

func (s *blockingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestQueue_DeliversAndDrainsOnClose(t *testing.T) {
	s := &blockingSender{}
	q := NewQueue(NewRunner(s, fastPolicy, nil, nil), Config{Workers: 2, Buffer: 16}, nil)
	q.Start()

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, q.Enqueue(context.Background(), domain.DispatchJob{RecordID: id}))
	}
	require.NoError(t, q.Close(context.Background()))
	assert.Equal(t, 4, s.count())
}

func TestQueue_EnqueueDoesNotBlockOnDelivery(t *testing.T) {
	s := &blockingSender{release: make(chan struct{})}
	q := NewQueue(NewRunner(s, fastPolicy, nil, nil), Config{Workers: 1, Buffer: 4}, nil)
	q.Start()

	done := make(chan error, 1)
	go func() { done <- q.Enqueue(context.Background(), domain.DispatchJob{RecordID: "a"}) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on delivery")
	}
	close(s.release)
	require.NoError(t, q.Close(context.Background()))
	assert.Equal(t, 1, s.count())
}

func TestQueue_Full(t *testing.T) {
	s := &blockingSender{}
	q := NewQueue(NewRunner(s, fastPolicy, nil, nil), Config{Workers: 1, Buffer: 1}, nil)
	// Not started: the buffer fills and stays full.
	require.NoError(t, q.Enqueue(context.Background(), domain.DispatchJob{RecordID: "a"}))
	err := q.Enqueue(context.Background(), domain.DispatchJob{RecordID: "b"})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.ErrorIs(t, err, domain.ErrDispatchFailure)
}

func TestQueue_EnqueueAfterClose(t *testing.T) {
	q := NewQueue(NewRunner(&blockingSender{}, fastPolicy, nil, nil), Config{}, nil)
	q.Start()
	require.NoError(t, q.Close(context.Background()))
	assert.ErrorIs(t, q.Enqueue(context.Background(), domain.DispatchJob{RecordID: "a"}), ErrQueueClosed)
	// Second close is a no-op.
	assert.NoError(t, q.Close(context.Background()))
}
