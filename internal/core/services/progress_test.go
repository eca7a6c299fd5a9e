package services

import (
	"context"
	"testing"
	"time"

	"github.com/manthysbr/ocrflow/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ch <-chan domain.TaskSnapshot) []domain.TaskSnapshot {
	t.Helper()
	var out []domain.TaskSnapshot
	timeout := time.After(3 * time.Second)
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, snap)
		case <-timeout:
			t.Fatalf("stream did not terminate, got %d snapshots", len(out))
		}
	}
}

func TestProgress_UnknownTask(t *testing.T) {
	registry := NewTaskRegistry()
	pub := NewProgressPublisher(testLogger(), registry, nil, 10*time.Millisecond)

	snaps := collect(t, pub.Subscribe(context.Background(), "missing"))

	require.Len(t, snaps, 1)
	assert.Equal(t, domain.SnapshotStatusError, snaps[0].Status)
	assert.Equal(t, domain.TaskID("missing"), snaps[0].TaskID)
	assert.NotEmpty(t, snaps[0].Error)
	assert.Equal(t, 0, registry.Len(), "subscribing must not create a task")
}

func TestProgress_StreamsUntilTerminal(t *testing.T) {
	bus := NewEventBus(testLogger())
	registry := NewTaskRegistry()
	task := NewBatchTask("t1", t.TempDir(), []domain.FileJob{{Name: "a.pdf"}, {Name: "b.pdf"}}, bus.Publish)
	t.Cleanup(task.Close)
	require.NoError(t, registry.Add(task))

	pub := NewProgressPublisher(testLogger(), registry, bus, 20*time.Millisecond)
	ch := pub.Subscribe(context.Background(), "t1")

	go func() {
		for i := 0; i < 2; i++ {
			time.Sleep(30 * time.Millisecond)
			task.Begin(i)
			task.Finish(i, domain.ConversionResult{}, nil)
		}
	}()

	snaps := collect(t, ch)
	require.NotEmpty(t, snaps)

	last := snaps[len(snaps)-1]
	assert.Equal(t, string(domain.TaskStateCompleted), last.Status)
	assert.Equal(t, 100.0, last.Progress.Percent)

	prev := -1.0
	for i, s := range snaps {
		assert.GreaterOrEqual(t, s.Progress.Percent, prev, "percent went backwards")
		prev = s.Progress.Percent
		assertConserved(t, s)
		if i < len(snaps)-1 {
			assert.False(t, s.Terminal(), "terminal snapshot before the end of the stream")
		}
	}
}

func TestProgress_TerminalTaskYieldsOneSnapshot(t *testing.T) {
	registry := NewTaskRegistry()
	task := NewBatchTask("t1", t.TempDir(), []domain.FileJob{{Name: "a.pdf"}}, nil)
	t.Cleanup(task.Close)
	require.NoError(t, registry.Add(task))
	require.NoError(t, task.Cancel())

	pub := NewProgressPublisher(testLogger(), registry, nil, 10*time.Millisecond)
	snaps := collect(t, pub.Subscribe(context.Background(), "t1"))

	require.Len(t, snaps, 1)
	assert.Equal(t, string(domain.TaskStateCancelled), snaps[0].Status)
}

func TestProgress_MultipleSubscribersSeeSameFinalState(t *testing.T) {
	bus := NewEventBus(testLogger())
	registry := NewTaskRegistry()
	task := NewBatchTask("t1", t.TempDir(), []domain.FileJob{{Name: "a.pdf"}}, bus.Publish)
	t.Cleanup(task.Close)
	require.NoError(t, registry.Add(task))

	pub := NewProgressPublisher(testLogger(), registry, bus, 10*time.Millisecond)
	first := pub.Subscribe(context.Background(), "t1")
	second := pub.Subscribe(context.Background(), "t1")

	task.Begin(0)
	task.Finish(0, domain.ConversionResult{}, &domain.ConversionError{Kind: domain.ConversionProviderAPI, Message: "bad"})

	a := collect(t, first)
	b := collect(t, second)
	require.NotEmpty(t, a)
	require.NotEmpty(t, b)
	assert.Equal(t, a[len(a)-1].Status, b[len(b)-1].Status)
	assert.Equal(t, string(domain.TaskStateFailed), a[len(a)-1].Status)
	assert.Equal(t, 0, bus.SubscriberCount("t1"))
}

func TestProgress_ContextCancelClosesStream(t *testing.T) {
	registry := NewTaskRegistry()
	task := NewBatchTask("t1", t.TempDir(), []domain.FileJob{{Name: "a.pdf"}}, nil)
	t.Cleanup(task.Close)
	require.NoError(t, registry.Add(task))

	ctx, cancel := context.WithCancel(context.Background())
	pub := NewProgressPublisher(testLogger(), registry, nil, 10*time.Millisecond)
	ch := pub.Subscribe(ctx, "t1")

	<-ch
	cancel()
	collect(t, ch)
	assert.Equal(t, domain.TaskStateRunning, task.State())
}

func TestProgress_DiscardEndsStream(t *testing.T) {
	h := newHarness(t, &fakeConverter{gate: make(chan struct{})}, 1).start()
	id, _, err := h.svc.CreateTask(context.Background(), []domain.Upload{pdfUpload("a.pdf")})
	require.NoError(t, err)

	pub := NewProgressPublisher(testLogger(), h.registry, h.bus, time.Hour)
	ch := pub.Subscribe(context.Background(), id)
	<-ch

	require.NoError(t, h.svc.Discard(id))
	snaps := collect(t, ch)
	require.NotEmpty(t, snaps)
	assert.Equal(t, string(domain.TaskStateCancelled), snaps[len(snaps)-1].Status)
}
