// Package writer owns every mutation of the canonical document file. Requests
// are executed one at a time in submission order; each write backs up the
// current file and atomically replaces it.
package writer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"capplan/internal/backup"
	"capplan/internal/document"
	"capplan/pkg/capacity"
)

// ErrSkipWrite may be returned by an update function to resolve the request
// without touching the canonical file.
var ErrSkipWrite = errors.New("skip write")

// DefaultSinkTimeout bounds each best-effort sink.
const DefaultSinkTimeout = 5 * time.Second

// Committed describes a write that reached the canonical file.
type Committed struct {
	Document capacity.Document
	Path     string
	Backup   *backup.File
}

// Sink receives every committed document. Sink failures are logged and never
// propagated to the writer. Apply runs inside the writer's queue and must
// return promptly once ctx is done; the sink timeout is only as strong as
// the sink's own ctx checks.
type Sink interface {
	Step() capacity.WriteStep
	Apply(ctx context.Context, c Committed) error
}

// Result is what a resolved Future reports.
type Result struct {
	Document capacity.Document
	Backup   *backup.File
	Bytes    int
	Skipped  bool
}

// Future resolves once its request has been executed.
type Future struct {
	done   chan struct{}
	result Result
	err    error
}

func newFuture() *Future { return &Future{done: make(chan struct{})} }

func (f *Future) resolve(r Result, err error) {
	f.result, f.err = r, err
	close(f.done)
}

// Done is closed when the request has completed.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the request completes or ctx ends. An abandoned request
// still runs to completion.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// UpdateFunc mutates the current document inside the serializer's slot.
type UpdateFunc func(doc *capacity.Document) error

type request struct {
	doc     capacity.Document
	update  UpdateFunc
	produce func() (capacity.Document, error)
	future  *Future
}

// Options configures a Serializer.
type Options struct {
	SinkTimeout time.Duration
	Sinks       []Sink
	Metrics     *Metrics
}

// Serializer is the single writer of one canonical file.
type Serializer struct {
	store    *document.Store
	rotation *backup.Rotation
	sinks    []Sink
	timeout  time.Duration
	metrics  *Metrics
	log      *zap.SugaredLogger

	mu      sync.Mutex
	pending []request
	busy    bool
	closed  bool
	wg      sync.WaitGroup

	renameFn func(oldpath, newpath string) error
}

// New returns a serializer writing to store's canonical path.
func New(store *document.Store, rotation *backup.Rotation, opts Options, log *zap.SugaredLogger) *Serializer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = DefaultSinkTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	return &Serializer{
		store:    store,
		rotation: rotation,
		sinks:    opts.Sinks,
		timeout:  opts.SinkTimeout,
		metrics:  opts.Metrics,
		log:      log.Named("writer"),
		renameFn: os.Rename,
	}
}

// AddSink registers a sink for subsequent writes.
func (s *Serializer) AddSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// Store returns the document reader the serializer writes for.
func (s *Serializer) Store() *document.Store { return s.store }

// Rotation returns the backup series of the canonical file.
func (s *Serializer) Rotation() *backup.Rotation { return s.rotation }

// Enqueue submits a whole-document replacement.
func (s *Serializer) Enqueue(doc capacity.Document) *Future {
	return s.submit(request{doc: doc.Clone()})
}

// EnqueueUpdate submits a read-modify-write: fn sees the document as of the
// moment the request reaches the head of the queue.
func (s *Serializer) EnqueueUpdate(fn UpdateFunc) *Future {
	return s.submit(request{update: fn})
}

// Write enqueues doc and waits for it.
func (s *Serializer) Write(ctx context.Context, doc capacity.Document) (Result, error) {
	return s.Enqueue(doc).Wait(ctx)
}

// Update enqueues fn and waits for it.
func (s *Serializer) Update(ctx context.Context, fn UpdateFunc) (Result, error) {
	return s.EnqueueUpdate(fn).Wait(ctx)
}

func (s *Serializer) submit(r request) *Future {
	r.future = newFuture()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		r.future.resolve(Result{}, capacity.ErrSerializerClosed)
		return r.future
	}
	s.pending = append(s.pending, r)
	s.metrics.queueDepth.Set(float64(len(s.pending)))
	if !s.busy {
		s.busy = true
		s.wg.Add(1)
		go s.drain()
	}
	s.mu.Unlock()
	return r.future
}

// drain runs queued requests until the queue is empty. Only one drain
// goroutine exists at a time, guarded by busy.
func (s *Serializer) drain() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.busy = false
			s.mu.Unlock()
			return
		}
		r := s.pending[0]
		s.pending[0] = request{}
		s.pending = s.pending[1:]
		s.metrics.queueDepth.Set(float64(len(s.pending)))
		s.mu.Unlock()

		res, err := s.execute(r)
		r.future.resolve(res, err)
	}
}

// Close rejects new requests and waits for queued ones to finish.
func (s *Serializer) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for pending writes: %w", ctx.Err())
	}
}

func (s *Serializer) execute(r request) (res Result, err error) {
	start := time.Now()
	defer func() {
		s.metrics.duration.Observe(time.Since(start).Seconds())
		s.metrics.writes.WithLabelValues(outcome(res, err)).Inc()
	}()

	doc := r.doc
	if r.produce != nil {
		if doc, err = r.produce(); err != nil {
			if errors.Is(err, ErrSkipWrite) {
				return Result{Document: doc, Skipped: true}, nil
			}
			return Result{}, err
		}
	}
	if r.update != nil {
		cur, err := s.store.Load(context.Background())
		if err != nil {
			return Result{}, err
		}
		if err := r.update(&cur); err != nil {
			if errors.Is(err, ErrSkipWrite) {
				return Result{Document: cur, Skipped: true}, nil
			}
			return Result{}, err
		}
		doc = cur
	}
	return s.commit(doc)
}

func outcome(res Result, err error) string {
	switch {
	case err == nil && res.Skipped:
		return "skipped"
	case err == nil:
		return "ok"
	case errors.Is(err, capacity.ErrSerializationInvariant):
		return "invalid"
	case errors.Is(err, capacity.ErrIO):
		return "io_error"
	default:
		return "rejected"
	}
}

// commit runs the write protocol. Only the serialize, backup and replace
// steps can fail the write.
func (s *Serializer) commit(doc capacity.Document) (Result, error) {
	path := s.store.Path()

	data, err := document.VerifyRoundTrip(doc)
	if err != nil {
		return Result{}, &capacity.StepError{Step: capacity.StepSerialize, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Result{}, capacity.IOError(capacity.StepBackup, err)
	}
	var backupFile *backup.File
	f, ok, err := s.rotation.Snapshot(path)
	if err != nil {
		return Result{}, capacity.IOError(capacity.StepBackup, err)
	}
	if ok {
		backupFile = &f
	}

	if err := s.replace(path, data); err != nil {
		return Result{}, capacity.IOError(capacity.StepReplace, err)
	}
	s.log.Debugw("document written", "path", path, "bytes", len(data))

	committed := Committed{Document: doc, Path: path, Backup: backupFile}
	s.mu.Lock()
	sinks := append([]Sink(nil), s.sinks...)
	s.mu.Unlock()
	for _, sink := range sinks {
		s.runSink(sink, committed)
	}

	if _, err := s.rotation.Prune(); err != nil {
		s.bestEffortFailed(capacity.StepPrune, err)
	}
	if files, err := s.rotation.List(); err == nil {
		s.metrics.backupsRetained.Set(float64(len(files)))
	}
	return Result{Document: doc, Backup: backupFile, Bytes: len(data)}, nil
}

func (s *Serializer) runSink(sink Sink, c Committed) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			s.bestEffortFailed(sink.Step(), fmt.Errorf("panic: %v", p))
		}
	}()
	if err := sink.Apply(ctx, c); err != nil {
		s.bestEffortFailed(sink.Step(), err)
	}
}

func (s *Serializer) bestEffortFailed(step capacity.WriteStep, err error) {
	s.metrics.stepFailures.WithLabelValues(string(step)).Inc()
	s.log.Warnw("best-effort write step failed", "step", step, "error", err)
}

// replace writes data to a temp file beside path, syncs it, and renames it
// over path. The rename is the only mutation of the canonical path.
func (s *Serializer) replace(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return s.renameFn(tmpName, path)
}
