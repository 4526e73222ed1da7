package s3

import (
	"context"
	"testing"
)

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{Region: "us-east-1"})
	if err == nil {
		t.Fatal("expected error for missing bucket")
	}
}

func TestObjectKeyJoinsPrefix(t *testing.T) {
	s := &Store{bucket: "b", prefix: "contexts"}
	if got := s.objectKey("ctx1/art1/chunk1"); got != "contexts/ctx1/art1/chunk1" {
		t.Fatalf("unexpected object key: %q", got)
	}
}

func TestObjectKeyWithoutPrefixReturnsKeyUnchanged(t *testing.T) {
	s := &Store{bucket: "b"}
	if got := s.objectKey("ctx1/art1/chunk1"); got != "ctx1/art1/chunk1" {
		t.Fatalf("unexpected object key: %q", got)
	}
}
