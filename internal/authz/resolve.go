package authz

import (
	"context"
	"fmt"
	"strconv"

	authzDatamodel "github.com/frahmantamala/membership-portal/internal/core/datamodel/authz"
)

// resolveRole turns a reference into a stored role. An entity reference is
// looked up by id when it has one, by name otherwise. A nil role with a nil
// error means the reference did not resolve.
func resolveRole(ctx context.Context, store Reader, ref RoleRef) (*authzDatamodel.Role, error) {
	switch v := ref.(type) {
	case RoleName:
		return lookupRole(ctx, store, string(v))
	case Role:
		return resolveRoleEntity(ctx, store, v)
	case *Role:
		if v == nil {
			return nil, nil
		}
		return resolveRoleEntity(ctx, store, *v)
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("authz: unsupported role reference %T", ref)
	}
}

func resolveRoleEntity(ctx context.Context, store Reader, role Role) (*authzDatamodel.Role, error) {
	if role.ID > 0 {
		found, err := store.RoleByID(ctx, role.ID)
		if err != nil {
			return nil, fmt.Errorf("authz: lookup role %d: %w", role.ID, err)
		}
		return found, nil
	}
	if role.Name == "" {
		return nil, nil
	}
	return lookupRole(ctx, store, role.Name)
}

func lookupRole(ctx context.Context, store Reader, name string) (*authzDatamodel.Role, error) {
	role, err := store.RoleByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("authz: lookup role %q: %w", name, err)
	}
	return role, nil
}

func resolvePermission(ctx context.Context, store Reader, ref PermissionRef) (*authzDatamodel.Permission, error) {
	switch v := ref.(type) {
	case PermissionName:
		return lookupPermission(ctx, store, string(v))
	case Permission:
		return resolvePermissionEntity(ctx, store, v)
	case *Permission:
		if v == nil {
			return nil, nil
		}
		return resolvePermissionEntity(ctx, store, *v)
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("authz: unsupported permission reference %T", ref)
	}
}

func resolvePermissionEntity(ctx context.Context, store Reader, perm Permission) (*authzDatamodel.Permission, error) {
	if perm.ID > 0 {
		found, err := store.PermissionByID(ctx, perm.ID)
		if err != nil {
			return nil, fmt.Errorf("authz: lookup permission %d: %w", perm.ID, err)
		}
		return found, nil
	}
	if perm.Name == "" {
		return nil, nil
	}
	return lookupPermission(ctx, store, perm.Name)
}

func lookupPermission(ctx context.Context, store Reader, name string) (*authzDatamodel.Permission, error) {
	perm, err := store.PermissionByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("authz: lookup permission %q: %w", name, err)
	}
	return perm, nil
}

// resolveRoles resolves every reference before anything is written. In strict
// mode the first unresolved reference aborts with a NotFoundError, otherwise
// it is skipped. Duplicates collapse to one entry.
func resolveRoles(ctx context.Context, store Reader, refs []RoleRef, strict bool) ([]*authzDatamodel.Role, error) {
	seen := make(map[int64]struct{}, len(refs))
	roles := make([]*authzDatamodel.Role, 0, len(refs))
	for _, ref := range refs {
		role, err := resolveRole(ctx, store, ref)
		if err != nil {
			return nil, err
		}
		if role == nil {
			if strict {
				return nil, &NotFoundError{Kind: KindRole, Name: refLabel(ref)}
			}
			continue
		}
		if _, ok := seen[role.ID]; ok {
			continue
		}
		seen[role.ID] = struct{}{}
		roles = append(roles, role)
	}
	return roles, nil
}

func resolvePermissions(ctx context.Context, store Reader, refs []PermissionRef, strict bool) ([]*authzDatamodel.Permission, error) {
	seen := make(map[int64]struct{}, len(refs))
	perms := make([]*authzDatamodel.Permission, 0, len(refs))
	for _, ref := range refs {
		perm, err := resolvePermission(ctx, store, ref)
		if err != nil {
			return nil, err
		}
		if perm == nil {
			if strict {
				return nil, &NotFoundError{Kind: KindPermission, Name: permissionLabel(ref)}
			}
			continue
		}
		if _, ok := seen[perm.ID]; ok {
			continue
		}
		seen[perm.ID] = struct{}{}
		perms = append(perms, perm)
	}
	return perms, nil
}

func resolveAffiliations(ctx context.Context, store Reader, ids []int64, strict bool) ([]*authzDatamodel.Affiliation, error) {
	affiliations := make([]*authzDatamodel.Affiliation, 0, len(ids))
	for _, id := range uniqueIDs(ids) {
		affiliation, err := store.AffiliationByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("authz: lookup affiliation %d: %w", id, err)
		}
		if affiliation == nil {
			if strict {
				return nil, &NotFoundError{Kind: KindAffiliation, Name: strconv.FormatInt(id, 10)}
			}
			continue
		}
		affiliations = append(affiliations, affiliation)
	}
	return affiliations, nil
}

func refLabel(ref RoleRef) string {
	switch v := ref.(type) {
	case RoleName:
		return string(v)
	case Role:
		return entityLabel(v.ID, v.Name)
	case *Role:
		if v != nil {
			return entityLabel(v.ID, v.Name)
		}
	}
	return ""
}

func refLabels(refs []RoleRef) []string {
	labels := make([]string, 0, len(refs))
	for _, ref := range refs {
		labels = append(labels, refLabel(ref))
	}
	return labels
}

func permissionLabel(ref PermissionRef) string {
	switch v := ref.(type) {
	case PermissionName:
		return string(v)
	case Permission:
		return entityLabel(v.ID, v.Name)
	case *Permission:
		if v != nil {
			return entityLabel(v.ID, v.Name)
		}
	}
	return ""
}

func entityLabel(id int64, name string) string {
	if name != "" {
		return name
	}
	return "#" + strconv.FormatInt(id, 10)
}
