package artifacts

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// BlobStore is a durable, key-addressed backend for file-artifact chunk
// bytes that would otherwise sit only in a Store's in-memory map or SQL row.
// Grounded on the teacher's artifacts.S3Store Put/Get/Delete shape
// (internal/artifacts/s3_store.go), generalized to an io.Reader-based
// interface so any blob backend (not just S3) can satisfy it.
type BlobStore interface {
	Put(ctx context.Context, key string, data io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

const blobRefEncoding = "blob-ref"

// BlobBackedStore wraps a Store and offloads file-artifact chunks at or
// above Threshold bytes to Blobs, keeping only a reference key in the
// chunk's Content field; chunks below Threshold pass through unchanged.
// Read paths rehydrate blob-ref chunks transparently, so callers of
// GetFileContent never see the indirection.
//
// TotalSize on the wrapped FileArtifact reflects the reference key's
// length rather than the offloaded chunk's real byte count for
// blob-backed chunks, since the wrapped Store never sees the original
// bytes. Callers that need an exact byte count should track it
// separately from artifact metadata.
type BlobBackedStore struct {
	Store
	Blobs     BlobStore
	Threshold int
}

// AppendFileChunk implements Store, offloading content to Blobs when it
// meets Threshold and delegating otherwise.
func (s *BlobBackedStore) AppendFileChunk(ctx context.Context, contextID, artifactID, content string, opts AppendChunkOptions) (*FileArtifact, error) {
	if s.Blobs == nil || s.Threshold <= 0 || len(content) < s.Threshold {
		return s.Store.AppendFileChunk(ctx, contextID, artifactID, content, opts)
	}

	key := blobKey(contextID, artifactID)
	if err := s.Blobs.Put(ctx, key, strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("blob-backed store: put chunk: %w", err)
	}

	refOpts := opts
	refOpts.Encoding = blobRefEncoding
	return s.Store.AppendFileChunk(ctx, contextID, artifactID, key, refOpts)
}

// GetFileContent implements Store, rehydrating any blob-ref chunks before
// concatenation.
func (s *BlobBackedStore) GetFileContent(ctx context.Context, contextID, artifactID string) (string, error) {
	if s.Blobs == nil {
		return s.Store.GetFileContent(ctx, contextID, artifactID)
	}

	artifact, err := s.Store.GetArtifact(ctx, contextID, artifactID)
	if err != nil {
		return "", err
	}
	if artifact == nil {
		return "", &ErrNotFound{ArtifactID: artifactID}
	}
	fa, ok := artifact.(*FileArtifact)
	if !ok {
		return "", &ErrWrongKind{ArtifactID: artifactID, Want: KindFile, Got: artifact.ArtifactKind()}
	}

	var sb strings.Builder
	for _, c := range fa.Chunks {
		if c.Encoding != blobRefEncoding {
			sb.WriteString(c.Content)
			continue
		}
		rc, err := s.Blobs.Get(ctx, c.Content)
		if err != nil {
			return "", fmt.Errorf("blob-backed store: fetch chunk %s: %w", c.Content, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("blob-backed store: read chunk %s: %w", c.Content, err)
		}
		sb.Write(data)
	}
	return sb.String(), nil
}

// DeleteContext implements Store, deleting blob-ref chunks for every file
// artifact in contextID before delegating to the wrapped Store.
func (s *BlobBackedStore) DeleteContext(ctx context.Context, contextID string) error {
	if s.Blobs != nil {
		artifacts, err := s.Store.ListArtifacts(ctx, Filter{ContextID: contextID, Kind: KindFile})
		if err != nil {
			return fmt.Errorf("blob-backed store: list artifacts: %w", err)
		}
		for _, a := range artifacts {
			fa, ok := a.(*FileArtifact)
			if !ok {
				continue
			}
			for _, c := range fa.Chunks {
				if c.Encoding == blobRefEncoding {
					_ = s.Blobs.Delete(ctx, c.Content)
				}
			}
		}
	}
	return s.Store.DeleteContext(ctx, contextID)
}

func blobKey(contextID, artifactID string) string {
	return fmt.Sprintf("%s/%s/%s", contextID, artifactID, uuid.NewString())
}
