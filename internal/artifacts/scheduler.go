package artifacts

import (
	"context"
	"sync"
	"time"
)

// artifactLock is the tail of a FIFO chain for one (contextID, artifactID)
// pair: each caller waits for the done channel of the caller before it, so
// operations run in the order they called lock. The ref counting is grounded
// on the teacher's sessionLock (internal/agent/tool_registry.go): the map
// entry is garbage-collected once its last holder releases it.
type artifactLock struct {
	tail chan struct{}
	refs int
}

// Scheduler decorates a Store with a per-artifact serial queue (§4.3): for a
// given (contextID, artifactID), mutating operations execute in the order
// they were submitted to the scheduler; operations on distinct artifacts run
// concurrently. Read-only operations bypass the queue entirely.
type Scheduler struct {
	store   Store
	locksMu sync.Mutex
	locks   map[key]*artifactLock
}

// NewScheduler wraps store with the per-artifact serial queue.
func NewScheduler(store Store) *Scheduler {
	return &Scheduler{
		store: store,
		locks: make(map[key]*artifactLock),
	}
}

// lock acquires the serial queue for (contextID, artifactID) and returns a
// release function; the map entry is removed once the last waiter releases.
func (s *Scheduler) lock(contextID, artifactID string) func() {
	k := key{contextID, artifactID}

	s.locksMu.Lock()
	l := s.locks[k]
	if l == nil {
		l = &artifactLock{}
		s.locks[k] = l
	}
	l.refs++
	prev := l.tail
	done := make(chan struct{})
	l.tail = done
	s.locksMu.Unlock()

	if prev != nil {
		<-prev
	}
	return func() {
		close(done)
		s.locksMu.Lock()
		l.refs--
		if l.refs <= 0 {
			delete(s.locks, k)
		}
		s.locksMu.Unlock()
	}
}

// CreateFileArtifact implements Store, serialized per (contextID, artifactID).
func (s *Scheduler) CreateFileArtifact(ctx context.Context, opts CreateFileOptions) (*FileArtifact, error) {
	unlock := s.lock(opts.ContextID, opts.ArtifactID)
	defer unlock()
	return s.store.CreateFileArtifact(ctx, opts)
}

// CreateDataArtifact implements Store, serialized per (contextID, artifactID).
func (s *Scheduler) CreateDataArtifact(ctx context.Context, opts CreateDataOptions) (*DataArtifact, error) {
	unlock := s.lock(opts.ContextID, opts.ArtifactID)
	defer unlock()
	return s.store.CreateDataArtifact(ctx, opts)
}

// CreateDatasetArtifact implements Store, serialized per (contextID, artifactID).
func (s *Scheduler) CreateDatasetArtifact(ctx context.Context, opts CreateDatasetOptions) (*DatasetArtifact, error) {
	unlock := s.lock(opts.ContextID, opts.ArtifactID)
	defer unlock()
	return s.store.CreateDatasetArtifact(ctx, opts)
}

// AppendFileChunk implements Store, serialized per (contextID, artifactID).
func (s *Scheduler) AppendFileChunk(ctx context.Context, contextID, artifactID, content string, opts AppendChunkOptions) (*FileArtifact, error) {
	unlock := s.lock(contextID, artifactID)
	defer unlock()
	return s.store.AppendFileChunk(ctx, contextID, artifactID, content, opts)
}

// WriteData implements Store, serialized per (contextID, artifactID).
func (s *Scheduler) WriteData(ctx context.Context, contextID, artifactID string, data any) (*DataArtifact, error) {
	unlock := s.lock(contextID, artifactID)
	defer unlock()
	return s.store.WriteData(ctx, contextID, artifactID, data)
}

// AppendDatasetBatch implements Store, serialized per (contextID, artifactID).
func (s *Scheduler) AppendDatasetBatch(ctx context.Context, contextID, artifactID string, rows []any, opts AppendBatchOptions) (*DatasetArtifact, error) {
	unlock := s.lock(contextID, artifactID)
	defer unlock()
	return s.store.AppendDatasetBatch(ctx, contextID, artifactID, rows, opts)
}

// GetArtifact bypasses the queue (§4.3: read-only operations execute directly).
func (s *Scheduler) GetArtifact(ctx context.Context, contextID, artifactID string) (Artifact, error) {
	return s.store.GetArtifact(ctx, contextID, artifactID)
}

// ListArtifacts bypasses the queue.
func (s *Scheduler) ListArtifacts(ctx context.Context, filter Filter) ([]Artifact, error) {
	return s.store.ListArtifacts(ctx, filter)
}

// GetFileContent bypasses the queue.
func (s *Scheduler) GetFileContent(ctx context.Context, contextID, artifactID string) (string, error) {
	return s.store.GetFileContent(ctx, contextID, artifactID)
}

// GetDataContent bypasses the queue.
func (s *Scheduler) GetDataContent(ctx context.Context, contextID, artifactID string) (any, error) {
	return s.store.GetDataContent(ctx, contextID, artifactID)
}

// GetDatasetRows bypasses the queue.
func (s *Scheduler) GetDatasetRows(ctx context.Context, contextID, artifactID string) ([]any, error) {
	return s.store.GetDatasetRows(ctx, contextID, artifactID)
}

// DeleteContext bypasses the per-artifact queue; callers (the cleanup
// service) are expected to invoke it only against contexts with no
// in-flight turn (§5).
func (s *Scheduler) DeleteContext(ctx context.Context, contextID string) error {
	return s.store.DeleteContext(ctx, contextID)
}

// PruneExpired bypasses the per-artifact queue for the same reason as
// DeleteContext: the cleanup sweep runs against idle contexts.
func (s *Scheduler) PruneExpired(ctx context.Context, olderThan time.Duration) (int, error) {
	return s.store.PruneExpired(ctx, olderThan)
}

var _ Store = (*Scheduler)(nil)
