package services

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/manthysbr/ocrflow/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// fakeConverter writes a one-line complete.md per document. Inputs whose name
// contains a key of fail return that error; panicOn makes it panic instead.
type fakeConverter struct {
	fail     map[string]error
	panicOn  string
	readyErr error
	delay    time.Duration
	gate     chan struct{} // when set, each conversion waits for one token

	calls   atomic.Int32
	running atomic.Int32
	peak    atomic.Int32
}

func (f *fakeConverter) Ready() error { return f.readyErr }

func (f *fakeConverter) Convert(ctx context.Context, inputPath, outputDir string) (domain.ConversionResult, error) {
	f.calls.Add(1)
	cur := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		p := f.peak.Load()
		if cur <= p || f.peak.CompareAndSwap(p, cur) {
			break
		}
	}

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return domain.ConversionResult{}, ctx.Err()
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	base := filepath.Base(inputPath)
	if f.panicOn != "" && strings.Contains(base, f.panicOn) {
		panic("boom")
	}
	for key, err := range f.fail {
		if strings.Contains(base, key) {
			return domain.ConversionResult{}, err
		}
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return domain.ConversionResult{}, err
	}
	md := filepath.Join(outputDir, "complete.md")
	if err := os.WriteFile(md, []byte("# "+base+"\n\nconverted"), 0o644); err != nil {
		return domain.ConversionResult{}, err
	}
	return domain.ConversionResult{OutputDir: outputDir, MarkdownPath: md, Pages: 1}, nil
}

// recordingArchiver remembers the dirs it was asked to pack.
type recordingArchiver struct {
	mu   sync.Mutex
	base string
	dirs []string
}

func (a *recordingArchiver) WriteArchive(w io.Writer, baseDir string, dirs []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.base = baseDir
	a.dirs = append([]string(nil), dirs...)
	_, err := w.Write([]byte("zip"))
	return err
}

type memoryHistory struct {
	mu      sync.Mutex
	records []domain.ConversionRecord
}

func (h *memoryHistory) SaveConversion(_ context.Context, rec domain.ConversionRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return nil
}

func (h *memoryHistory) all() []domain.ConversionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.ConversionRecord(nil), h.records...)
}

func pdfUpload(name string) domain.Upload {
	return rawUpload(name, "%PDF-1.7\n1 0 obj\n<<>>\nendobj\n%%EOF\n")
}

func rawUpload(name, body string) domain.Upload {
	return domain.Upload{
		Name: name,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		},
	}
}

type harness struct {
	svc       *BatchService
	registry  *TaskRegistry
	pool      *WorkerPool
	bus       *EventBus
	workspace *WorkspaceManager
	archiver  *recordingArchiver
	history   *memoryHistory

	ctx     context.Context
	once    sync.Once
	started atomic.Bool
	done    chan struct{}
}

// newHarness wires a service over conv. The pool is not started until start is called.
func newHarness(t *testing.T, conv *fakeConverter, workers int64) *harness {
	t.Helper()
	logger := testLogger()
	registry := NewTaskRegistry()
	bus := NewEventBus(logger)
	ws := NewWorkspaceManager(t.TempDir())
	pool := NewWorkerPool(logger, PoolConfig{MaxConcurrentJobs: workers}, registry, nil)
	if conv != nil {
		pool.SetConverter(conv)
	}
	hist := &memoryHistory{}
	pool.SetHistory(hist)
	arch := &recordingArchiver{}

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{
		svc:       NewBatchService(logger, registry, pool, ws, bus, arch),
		registry:  registry,
		pool:      pool,
		bus:       bus,
		workspace: ws,
		archiver:  arch,
		history:   hist,
		ctx:       ctx,
		done:      make(chan struct{}),
	}
	// Stop the pool before t.TempDir is removed.
	t.Cleanup(func() {
		cancel()
		if h.started.Load() {
			<-h.done
		}
	})
	return h
}

func (h *harness) start() *harness {
	h.once.Do(func() {
		h.started.Store(true)
		go func() {
			defer close(h.done)
			_ = h.pool.Run(h.ctx)
		}()
	})
	return h
}

func (h *harness) waitState(t *testing.T, id domain.TaskID, want domain.TaskState) domain.TaskSnapshot {
	t.Helper()
	var snap domain.TaskSnapshot
	require.Eventually(t, func() bool {
		var err error
		snap, err = h.svc.Snapshot(id)
		return err == nil && snap.Status == string(want)
	}, 2*time.Second, 5*time.Millisecond, "task %s never reached %s", id, want)
	return snap
}
