package artifacts

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// key scopes storage to (contextID, artifactID) — §3 invariant (a).
type key struct {
	contextID  string
	artifactID string
}

// MemoryStore is an in-memory Store, grounded on the teacher's
// MemoryRepository (sync.RWMutex + map keyed by id, slog operation logging).
// Generalized here to key by (contextID, artifactID) instead of a single
// global id, and to the three-kind tagged union instead of one proto message.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[key]Artifact
	logger   *slog.Logger
	now      func() time.Time
}

// NewMemoryStore builds an empty MemoryStore. A nil logger defaults to
// slog.Default(), matching the teacher's NewMemoryRepository.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		entries: make(map[key]Artifact),
		logger:  logger,
		now:     time.Now,
	}
}

func (s *MemoryStore) clock() time.Time { return s.now() }

func appendOp(ops []Operation, typ, detail string, at time.Time) []Operation {
	return append(ops, Operation{Type: typ, At: at, Detail: detail})
}

// CreateFileArtifact implements Store (§4.8).
func (s *MemoryStore) CreateFileArtifact(ctx context.Context, opts CreateFileOptions) (*FileArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{opts.ContextID, opts.ArtifactID}
	now := s.clock()

	existing, ok := s.entries[k]
	if ok && !opts.Override {
		return nil, &ErrAlreadyExists{ArtifactID: opts.ArtifactID}
	}

	fa := &FileArtifact{
		Base: Base{
			ArtifactID: opts.ArtifactID,
			TaskID:     opts.TaskID,
			ContextID:  opts.ContextID,
			Status:     StatusBuilding,
			Version:    1,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		Name:     opts.Name,
		MimeType: opts.MimeType,
	}

	if ok {
		prev := existing.BaseFields()
		fa.Version = prev.Version + 1
		fa.CreatedAt = prev.CreatedAt
		fa.Operations = appendOp(nil, "reset", "override on create", now)
	}

	s.entries[k] = fa
	s.logger.Info("artifact created", "artifactId", opts.ArtifactID, "contextId", opts.ContextID, "kind", KindFile, "version", fa.Version)
	return fa, nil
}

// CreateDataArtifact implements Store (§4.8).
func (s *MemoryStore) CreateDataArtifact(ctx context.Context, opts CreateDataOptions) (*DataArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{opts.ContextID, opts.ArtifactID}
	now := s.clock()

	existing, ok := s.entries[k]
	if ok && !opts.Override {
		return nil, &ErrAlreadyExists{ArtifactID: opts.ArtifactID}
	}

	da := &DataArtifact{
		Base: Base{
			ArtifactID: opts.ArtifactID,
			TaskID:     opts.TaskID,
			ContextID:  opts.ContextID,
			Status:     StatusBuilding,
			Version:    1,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		Name: opts.Name,
	}

	if ok {
		prev := existing.BaseFields()
		da.Version = prev.Version + 1
		da.CreatedAt = prev.CreatedAt
		da.Operations = appendOp(nil, "reset", "override on create", now)
	}

	s.entries[k] = da
	s.logger.Info("artifact created", "artifactId", opts.ArtifactID, "contextId", opts.ContextID, "kind", KindData, "version", da.Version)
	return da, nil
}

// CreateDatasetArtifact implements Store (§4.8).
func (s *MemoryStore) CreateDatasetArtifact(ctx context.Context, opts CreateDatasetOptions) (*DatasetArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{opts.ContextID, opts.ArtifactID}
	now := s.clock()

	existing, ok := s.entries[k]
	if ok && !opts.Override {
		return nil, &ErrAlreadyExists{ArtifactID: opts.ArtifactID}
	}

	dsa := &DatasetArtifact{
		Base: Base{
			ArtifactID: opts.ArtifactID,
			TaskID:     opts.TaskID,
			ContextID:  opts.ContextID,
			Status:     StatusBuilding,
			Version:    1,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		Name:   opts.Name,
		Schema: opts.Schema,
	}

	if ok {
		prev := existing.BaseFields()
		dsa.Version = prev.Version + 1
		dsa.CreatedAt = prev.CreatedAt
		dsa.Operations = appendOp(nil, "reset", "override on create", now)
	}

	s.entries[k] = dsa
	s.logger.Info("artifact created", "artifactId", opts.ArtifactID, "contextId", opts.ContextID, "kind", KindDataset, "version", dsa.Version)
	return dsa, nil
}

// AppendFileChunk implements Store (§4.8). Empty chunks are ignored unless
// isLastChunk is set, in which case the artifact still completes.
func (s *MemoryStore) AppendFileChunk(ctx context.Context, contextID, artifactID, content string, opts AppendChunkOptions) (*FileArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{contextID, artifactID}
	a, ok := s.entries[k]
	if !ok {
		return nil, &ErrNotFound{ArtifactID: artifactID}
	}
	fa, ok := a.(*FileArtifact)
	if !ok {
		return nil, &ErrWrongKind{ArtifactID: artifactID, Want: KindFile, Got: a.ArtifactKind()}
	}
	if fa.Status == StatusComplete {
		return nil, &ErrComplete{ArtifactID: artifactID}
	}

	now := s.clock()
	if content != "" {
		fa.Chunks = append(fa.Chunks, Chunk{Content: content, Encoding: opts.Encoding})
		fa.TotalChunks = len(fa.Chunks)
		fa.TotalSize += len(content)
		fa.Version++
		fa.Operations = appendOp(fa.Operations, "append", "", now)
	} else if opts.IsLastChunk {
		fa.Version++
	}
	fa.UpdatedAt = now

	if opts.IsLastChunk {
		fa.Status = StatusComplete
		fa.CompletedAt = &now
	}
	return fa, nil
}

// WriteData implements Store (§4.8): atomic replace, marks complete.
func (s *MemoryStore) WriteData(ctx context.Context, contextID, artifactID string, data any) (*DataArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{contextID, artifactID}
	a, ok := s.entries[k]
	if !ok {
		return nil, &ErrNotFound{ArtifactID: artifactID}
	}
	da, ok := a.(*DataArtifact)
	if !ok {
		return nil, &ErrWrongKind{ArtifactID: artifactID, Want: KindData, Got: a.ArtifactKind()}
	}
	if da.Status == StatusComplete {
		return nil, &ErrComplete{ArtifactID: artifactID}
	}

	now := s.clock()
	da.Data = data
	da.Version++
	da.Operations = appendOp(da.Operations, "replace", "", now)
	da.UpdatedAt = now
	da.Status = StatusComplete
	da.CompletedAt = &now
	return da, nil
}

// AppendDatasetBatch implements Store (§4.8).
func (s *MemoryStore) AppendDatasetBatch(ctx context.Context, contextID, artifactID string, rows []any, opts AppendBatchOptions) (*DatasetArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{contextID, artifactID}
	a, ok := s.entries[k]
	if !ok {
		return nil, &ErrNotFound{ArtifactID: artifactID}
	}
	dsa, ok := a.(*DatasetArtifact)
	if !ok {
		return nil, &ErrWrongKind{ArtifactID: artifactID, Want: KindDataset, Got: a.ArtifactKind()}
	}
	if dsa.Status == StatusComplete {
		return nil, &ErrComplete{ArtifactID: artifactID}
	}

	now := s.clock()
	if len(rows) > 0 {
		dsa.Batches = append(dsa.Batches, rows)
		dsa.RowCount += len(rows)
		dsa.Version++
		dsa.Operations = appendOp(dsa.Operations, "append", "", now)
	} else if opts.IsLastBatch {
		dsa.Version++
	}
	dsa.UpdatedAt = now

	if opts.IsLastBatch {
		dsa.Status = StatusComplete
		dsa.CompletedAt = &now
	}
	return dsa, nil
}

// GetArtifact implements Store. Returns (nil, nil) when absent (§6).
func (s *MemoryStore) GetArtifact(ctx context.Context, contextID, artifactID string) (Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.entries[key{contextID, artifactID}]
	if !ok {
		return nil, nil
	}
	return a, nil
}

// ListArtifacts implements Store.
func (s *MemoryStore) ListArtifacts(ctx context.Context, filter Filter) ([]Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Artifact
	for k, a := range s.entries {
		if filter.ContextID != "" && k.contextID != filter.ContextID {
			continue
		}
		if filter.Kind != "" && a.ArtifactKind() != filter.Kind {
			continue
		}
		if filter.TaskID != "" && a.BaseFields().TaskID != filter.TaskID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// GetFileContent implements Store; concatenates chunks in append order.
func (s *MemoryStore) GetFileContent(ctx context.Context, contextID, artifactID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.entries[key{contextID, artifactID}]
	if !ok {
		return "", &ErrNotFound{ArtifactID: artifactID}
	}
	fa, ok := a.(*FileArtifact)
	if !ok {
		return "", &ErrWrongKind{ArtifactID: artifactID, Want: KindFile, Got: a.ArtifactKind()}
	}
	var sb []byte
	for _, c := range fa.Chunks {
		sb = append(sb, c.Content...)
	}
	return string(sb), nil
}

// GetDataContent implements Store.
func (s *MemoryStore) GetDataContent(ctx context.Context, contextID, artifactID string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.entries[key{contextID, artifactID}]
	if !ok {
		return nil, &ErrNotFound{ArtifactID: artifactID}
	}
	da, ok := a.(*DataArtifact)
	if !ok {
		return nil, &ErrWrongKind{ArtifactID: artifactID, Want: KindData, Got: a.ArtifactKind()}
	}
	return da.Data, nil
}

// GetDatasetRows implements Store; flattens batches into one row slice.
func (s *MemoryStore) GetDatasetRows(ctx context.Context, contextID, artifactID string) ([]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.entries[key{contextID, artifactID}]
	if !ok {
		return nil, &ErrNotFound{ArtifactID: artifactID}
	}
	dsa, ok := a.(*DatasetArtifact)
	if !ok {
		return nil, &ErrWrongKind{ArtifactID: artifactID, Want: KindDataset, Got: a.ArtifactKind()}
	}
	var rows []any
	for _, b := range dsa.Batches {
		rows = append(rows, b...)
	}
	return rows, nil
}

// DeleteContext implements Store, used by the cleanup sweep (§5).
func (s *MemoryStore) DeleteContext(ctx context.Context, contextID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.entries {
		if k.contextID == contextID {
			delete(s.entries, k)
		}
	}
	return nil
}

// PruneExpired implements Store.
func (s *MemoryStore) PruneExpired(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	cutoff := s.clock().Add(-olderThan)
	lastTouched := make(map[string]time.Time)
	for k, a := range s.entries {
		updated := a.BaseFields().UpdatedAt
		if cur, ok := lastTouched[k.contextID]; !ok || updated.After(cur) {
			lastTouched[k.contextID] = updated
		}
	}
	var expired []string
	for contextID, updated := range lastTouched {
		if updated.Before(cutoff) {
			expired = append(expired, contextID)
		}
	}
	s.mu.Unlock()

	for _, contextID := range expired {
		if err := s.DeleteContext(ctx, contextID); err != nil {
			return 0, err
		}
	}
	if len(expired) > 0 {
		s.logger.Info("pruned expired artifact contexts", "count", len(expired))
	}
	return len(expired), nil
}
