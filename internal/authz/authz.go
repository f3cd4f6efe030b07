package authz

import (
	authzDatamodel "github.com/frahmantamala/membership-portal/internal/core/datamodel/authz"
)

// SuperAdminRole is exempt from affiliation scoping.
const SuperAdminRole = "super_admin"

// User is the acting principal. Only ID is consulted by the resolver; roles,
// permissions and affiliations are always read from storage.
type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type Role struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Affiliation struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// RoleRef identifies a role either by name (RoleName) or as a resolved
// entity (Role or *Role).
type RoleRef interface {
	isRoleRef()
}

// RoleName refers to a role by its unique name.
type RoleName string

func (RoleName) isRoleRef() {}
func (Role) isRoleRef()     {}

// PermissionRef identifies a permission by name (PermissionName) or as a
// resolved entity (Permission or *Permission).
type PermissionRef interface {
	isPermissionRef()
}

type PermissionName string

func (PermissionName) isPermissionRef() {}
func (Permission) isPermissionRef()     {}

// RoleNames converts plain names into references.
func RoleNames(names ...string) []RoleRef {
	refs := make([]RoleRef, 0, len(names))
	for _, n := range names {
		refs = append(refs, RoleName(n))
	}
	return refs
}

// PermissionNames converts plain names into references.
func PermissionNames(names ...string) []PermissionRef {
	refs := make([]PermissionRef, 0, len(names))
	for _, n := range names {
		refs = append(refs, PermissionName(n))
	}
	return refs
}

func RoleFromDataModel(r *authzDatamodel.Role) Role {
	return Role{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
	}
}

func PermissionFromDataModel(p *authzDatamodel.Permission) Permission {
	return Permission{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
	}
}

func AffiliationFromDataModel(a *authzDatamodel.Affiliation) Affiliation {
	return Affiliation{
		ID:   a.ID,
		Name: a.Name,
		Type: a.Type,
	}
}

func UserFromDataModel(u *authzDatamodel.User) *User {
	return &User{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
	}
}
