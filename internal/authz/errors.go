package authz

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by every *NotFoundError.
	ErrNotFound = errors.New("authz: not found")

	ErrUserRequired = errors.New("authz: user is required")
)

type EntityKind string

const (
	KindUser        EntityKind = "user"
	KindRole        EntityKind = "role"
	KindPermission  EntityKind = "permission"
	KindAffiliation EntityKind = "affiliation"
)

// NotFoundError is returned by the strict mutations when a reference does
// not resolve to a stored entity.
type NotFoundError struct {
	Kind EntityKind
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("authz: %s %q not found", e.Kind, e.Name)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsNotFound reports whether err carries a NotFoundError.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
