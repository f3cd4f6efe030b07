package authz

import (
	"context"

	authzDatamodel "github.com/frahmantamala/membership-portal/internal/core/datamodel/authz"
)

// Reader loads the current association state. Lookups by name or id return
// (nil, nil) when nothing matches.
type Reader interface {
	// UserRoles returns the user's roles ordered by assignment time, ties
	// broken by role id.
	UserRoles(ctx context.Context, userID int64) ([]*authzDatamodel.Role, error)
	UserPermissions(ctx context.Context, userID int64) ([]*authzDatamodel.Permission, error)
	RolePermissions(ctx context.Context, roleIDs []int64) (map[int64][]*authzDatamodel.Permission, error)
	UserAffiliationIDs(ctx context.Context, userID int64) ([]int64, error)

	UserByID(ctx context.Context, id int64) (*authzDatamodel.User, error)
	RoleByID(ctx context.Context, id int64) (*authzDatamodel.Role, error)
	RoleByName(ctx context.Context, name string) (*authzDatamodel.Role, error)
	PermissionByID(ctx context.Context, id int64) (*authzDatamodel.Permission, error)
	PermissionByName(ctx context.Context, name string) (*authzDatamodel.Permission, error)
	AffiliationByID(ctx context.Context, id int64) (*authzDatamodel.Affiliation, error)
}

// Writer mutates association tables. Attach ignores rows that already exist,
// Detach ignores rows that do not, Replace leaves exactly the given ids.
type Writer interface {
	AttachUserRoles(ctx context.Context, userID int64, roleIDs []int64) error
	DetachUserRoles(ctx context.Context, userID int64, roleIDs []int64) error
	ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error

	AttachUserPermissions(ctx context.Context, userID int64, permissionIDs []int64) error
	DetachUserPermissions(ctx context.Context, userID int64, permissionIDs []int64) error
	ReplaceUserPermissions(ctx context.Context, userID int64, permissionIDs []int64) error

	AttachUserAffiliations(ctx context.Context, userID int64, affiliationIDs []int64) error
	DetachUserAffiliations(ctx context.Context, userID int64, affiliationIDs []int64) error
	ReplaceUserAffiliations(ctx context.Context, userID int64, affiliationIDs []int64) error

	AttachRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	DetachRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
}

type Store interface {
	Reader
	Writer

	// Transaction runs fn against a store bound to a single transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}
