package artifacts

import (
	"context"
	"time"
)

// CreateFileOptions is the input to CreateFileArtifact (§4.8).
type CreateFileOptions struct {
	ArtifactID string
	TaskID     string
	ContextID  string
	Name       string
	MimeType   string
	Override   bool
}

// CreateDataOptions is the input to CreateDataArtifact (§4.8).
type CreateDataOptions struct {
	ArtifactID string
	TaskID     string
	ContextID  string
	Name       string
	Override   bool
}

// CreateDatasetOptions is the input to CreateDatasetArtifact (§4.8).
type CreateDatasetOptions struct {
	ArtifactID string
	TaskID     string
	ContextID  string
	Name       string
	Schema     []ColumnSchema
	Override   bool
}

// AppendChunkOptions controls AppendFileChunk (§4.8).
type AppendChunkOptions struct {
	IsLastChunk bool
	Encoding    string
}

// AppendBatchOptions controls AppendDatasetBatch (§4.8).
type AppendBatchOptions struct {
	IsLastBatch bool
}

// Filter narrows ListArtifacts results, scoped to one context.
type Filter struct {
	ContextID string
	Kind      Kind
	TaskID    string
}

// Store is the context-scoped, versioned artifact store (§4.8). Every
// mutating method is expected to be called serially per (contextID,
// artifactID) — callers that need concurrency safety should wrap a Store in
// a Scheduler (§4.3).
type Store interface {
	CreateFileArtifact(ctx context.Context, opts CreateFileOptions) (*FileArtifact, error)
	CreateDataArtifact(ctx context.Context, opts CreateDataOptions) (*DataArtifact, error)
	CreateDatasetArtifact(ctx context.Context, opts CreateDatasetOptions) (*DatasetArtifact, error)

	AppendFileChunk(ctx context.Context, contextID, artifactID, content string, opts AppendChunkOptions) (*FileArtifact, error)
	WriteData(ctx context.Context, contextID, artifactID string, data any) (*DataArtifact, error)
	AppendDatasetBatch(ctx context.Context, contextID, artifactID string, rows []any, opts AppendBatchOptions) (*DatasetArtifact, error)

	// GetArtifact returns (nil, nil) if (contextID, artifactID) does not exist.
	GetArtifact(ctx context.Context, contextID, artifactID string) (Artifact, error)
	ListArtifacts(ctx context.Context, filter Filter) ([]Artifact, error)

	GetFileContent(ctx context.Context, contextID, artifactID string) (string, error)
	GetDataContent(ctx context.Context, contextID, artifactID string) (any, error)
	GetDatasetRows(ctx context.Context, contextID, artifactID string) ([]any, error)

	// DeleteContext removes every artifact scoped to contextID, used by the
	// cleanup service (§5).
	DeleteContext(ctx context.Context, contextID string) error

	// PruneExpired deletes every context whose artifacts have all gone
	// untouched (no create/append/write) for longer than olderThan, and
	// reports how many contexts were removed. Grounded on the teacher's
	// MemoryRepository/SQLRepository PruneExpired, generalized from
	// per-artifact ExpiresAt metadata to a context-wide UpdatedAt watermark
	// since this store has no separate expiry field.
	PruneExpired(ctx context.Context, olderThan time.Duration) (int, error)
}
