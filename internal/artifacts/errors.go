package artifacts

import "fmt"

// ErrAlreadyExists is returned by a create operation when (contextID,
// artifactID) already exists and override was not requested (§4.8, §8 I3).
type ErrAlreadyExists struct {
	ArtifactID string
}

func (e *ErrAlreadyExists) Error() string {
	return fmt.Sprintf("Artifact already exists: %s. Use override: true or a different artifactId.", e.ArtifactID)
}

// ErrNotFound is returned by mutating operations (and type-checked accessors)
// against an artifact that does not exist. getArtifact itself returns
// (nil, nil) rather than this error (§6: "Returns null, not error").
type ErrNotFound struct {
	ArtifactID string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("Artifact not found: %s", e.ArtifactID)
}

// ErrWrongKind is returned when an accessor is used against an artifact of a
// different Kind, e.g. getFileContent on a DataArtifact (§4.8).
type ErrWrongKind struct {
	ArtifactID string
	Want       Kind
	Got        Kind
}

func (e *ErrWrongKind) Error() string {
	return fmt.Sprintf("Artifact %s is not a %s artifact", e.ArtifactID, e.Want)
}

// ErrComplete is returned when a mutation is attempted against an artifact
// whose status is already complete (§3 invariant c).
type ErrComplete struct {
	ArtifactID string
}

func (e *ErrComplete) Error() string {
	return fmt.Sprintf("Artifact %s is already complete", e.ArtifactID)
}
