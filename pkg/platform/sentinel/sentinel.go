package sentinel

import "errors"

// Infrastructure facts returned (optionally wrapped) by stores. Services
// translate them into domain errors; handlers never see them directly.
//
// Validation failures belong in pkg/domain-errors instead.
var (
	// ErrNotFound means the entity does not exist in the store.
	ErrNotFound = errors.New("not found")
	// ErrConflict means an entity with the same identity already exists.
	ErrConflict = errors.New("conflict")
)
