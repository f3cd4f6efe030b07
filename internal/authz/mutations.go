package authz

import (
	"context"
	"strconv"

	authzDatamodel "github.com/frahmantamala/membership-portal/internal/core/datamodel/authz"
	"github.com/frahmantamala/membership-portal/internal/core/events"
)

// mutation describes one unit of work. apply runs inside a transaction and
// returns the labels recorded on the published event.
type mutation struct {
	operation   string
	eventType   string
	subjectType string
	subjectID   int64
	apply       func(tx Store) ([]string, error)
}

// run executes m atomically. Every reference is resolved inside apply before
// the first write, so a failed call leaves the stored state untouched. apply
// may fill in subjectID when the subject is itself resolved in the
// transaction.
func (r *Resolver) run(ctx context.Context, m *mutation) error {
	var targets []string
	err := r.store.Transaction(ctx, func(tx Store) error {
		var err error
		targets, err = m.apply(tx)
		return err
	})
	r.metrics.ObserveMutation(m.operation, err)
	if err != nil {
		if IsNotFound(err) {
			r.logger.Warn("assignment rejected",
				"operation", m.operation,
				"subject_type", m.subjectType,
				"subject_id", m.subjectID,
				"error", err)
		} else {
			r.logger.Error("assignment failed",
				"operation", m.operation,
				"subject_type", m.subjectType,
				"subject_id", m.subjectID,
				"error", err)
		}
		return err
	}

	r.logger.Info("assignment changed",
		"operation", m.operation,
		"subject_type", m.subjectType,
		"subject_id", m.subjectID,
		"targets", targets)

	if r.publisher != nil {
		event := events.NewAssignmentChangedEvent(m.eventType, m.subjectType, m.subjectID, targets)
		if err := r.publisher.PublishSync(ctx, event); err != nil {
			r.logger.Error("failed to publish assignment event",
				"event_type", m.eventType,
				"event_id", event.EventID(),
				"error", err)
		}
	}
	return nil
}

// AssignRole adds every referenced role to the user. An unknown name fails
// the whole call with a NotFoundError. Held roles are left as they are.
func (r *Resolver) AssignRole(ctx context.Context, user *User, refs ...RoleRef) (*User, error) {
	if user == nil {
		return nil, ErrUserRequired
	}

	err := r.run(ctx, &mutation{
		operation:   "assign_role",
		eventType:   events.EventTypeRolesAssigned,
		subjectType: events.SubjectUser,
		subjectID:   user.ID,
		apply: func(tx Store) ([]string, error) {
			roles, err := resolveRoles(ctx, tx, refs, true)
			if err != nil {
				return nil, err
			}
			return roleLabels(roles), tx.AttachUserRoles(ctx, user.ID, roleIDs(roles))
		},
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// RemoveRole detaches the referenced roles. Unknown names and roles the user
// does not hold are ignored.
func (r *Resolver) RemoveRole(ctx context.Context, user *User, refs ...RoleRef) (*User, error) {
	if user == nil {
		return nil, ErrUserRequired
	}

	err := r.run(ctx, &mutation{
		operation:   "remove_role",
		eventType:   events.EventTypeRolesRemoved,
		subjectType: events.SubjectUser,
		subjectID:   user.ID,
		apply: func(tx Store) ([]string, error) {
			roles, err := resolveRoles(ctx, tx, refs, false)
			if err != nil {
				return nil, err
			}
			return roleLabels(roles), tx.DetachUserRoles(ctx, user.ID, roleIDs(roles))
		},
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// SyncRoles replaces the user's roles with exactly the referenced set. With
// no references the user ends up with no roles.
func (r *Resolver) SyncRoles(ctx context.Context, user *User, refs ...RoleRef) (*User, error) {
	if user == nil {
		return nil, ErrUserRequired
	}

	err := r.run(ctx, &mutation{
		operation:   "sync_roles",
		eventType:   events.EventTypeRolesSynced,
		subjectType: events.SubjectUser,
		subjectID:   user.ID,
		apply: func(tx Store) ([]string, error) {
			roles, err := resolveRoles(ctx, tx, refs, true)
			if err != nil {
				return nil, err
			}
			return roleLabels(roles), tx.ReplaceUserRoles(ctx, user.ID, roleIDs(roles))
		},
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *Resolver) GivePermissionTo(ctx context.Context, user *User, refs ...PermissionRef) (*User, error) {
	if user == nil {
		return nil, ErrUserRequired
	}

	err := r.run(ctx, &mutation{
		operation:   "give_permission",
		eventType:   events.EventTypePermissionsGranted,
		subjectType: events.SubjectUser,
		subjectID:   user.ID,
		apply: func(tx Store) ([]string, error) {
			perms, err := resolvePermissions(ctx, tx, refs, true)
			if err != nil {
				return nil, err
			}
			return permissionLabels(perms), tx.AttachUserPermissions(ctx, user.ID, permissionIDs(perms))
		},
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *Resolver) RevokePermissionTo(ctx context.Context, user *User, refs ...PermissionRef) (*User, error) {
	if user == nil {
		return nil, ErrUserRequired
	}

	err := r.run(ctx, &mutation{
		operation:   "revoke_permission",
		eventType:   events.EventTypePermissionsRevoked,
		subjectType: events.SubjectUser,
		subjectID:   user.ID,
		apply: func(tx Store) ([]string, error) {
			perms, err := resolvePermissions(ctx, tx, refs, false)
			if err != nil {
				return nil, err
			}
			return permissionLabels(perms), tx.DetachUserPermissions(ctx, user.ID, permissionIDs(perms))
		},
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *Resolver) SyncPermissions(ctx context.Context, user *User, refs ...PermissionRef) (*User, error) {
	if user == nil {
		return nil, ErrUserRequired
	}

	err := r.run(ctx, &mutation{
		operation:   "sync_permissions",
		eventType:   events.EventTypePermissionsSynced,
		subjectType: events.SubjectUser,
		subjectID:   user.ID,
		apply: func(tx Store) ([]string, error) {
			perms, err := resolvePermissions(ctx, tx, refs, true)
			if err != nil {
				return nil, err
			}
			return permissionLabels(perms), tx.ReplaceUserPermissions(ctx, user.ID, permissionIDs(perms))
		},
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *Resolver) AssignAffiliation(ctx context.Context, user *User, affiliationIDs ...int64) (*User, error) {
	if user == nil {
		return nil, ErrUserRequired
	}

	err := r.run(ctx, &mutation{
		operation:   "assign_affiliation",
		eventType:   events.EventTypeAffiliationsAssigned,
		subjectType: events.SubjectUser,
		subjectID:   user.ID,
		apply: func(tx Store) ([]string, error) {
			affiliations, err := resolveAffiliations(ctx, tx, affiliationIDs, true)
			if err != nil {
				return nil, err
			}
			return affiliationLabels(affiliations), tx.AttachUserAffiliations(ctx, user.ID, affiliationIDList(affiliations))
		},
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *Resolver) RemoveAffiliation(ctx context.Context, user *User, affiliationIDs ...int64) (*User, error) {
	if user == nil {
		return nil, ErrUserRequired
	}

	err := r.run(ctx, &mutation{
		operation:   "remove_affiliation",
		eventType:   events.EventTypeAffiliationsRemoved,
		subjectType: events.SubjectUser,
		subjectID:   user.ID,
		apply: func(tx Store) ([]string, error) {
			affiliations, err := resolveAffiliations(ctx, tx, affiliationIDs, false)
			if err != nil {
				return nil, err
			}
			return affiliationLabels(affiliations), tx.DetachUserAffiliations(ctx, user.ID, affiliationIDList(affiliations))
		},
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *Resolver) SyncAffiliations(ctx context.Context, user *User, affiliationIDs ...int64) (*User, error) {
	if user == nil {
		return nil, ErrUserRequired
	}

	err := r.run(ctx, &mutation{
		operation:   "sync_affiliations",
		eventType:   events.EventTypeAffiliationsSynced,
		subjectType: events.SubjectUser,
		subjectID:   user.ID,
		apply: func(tx Store) ([]string, error) {
			affiliations, err := resolveAffiliations(ctx, tx, affiliationIDs, true)
			if err != nil {
				return nil, err
			}
			return affiliationLabels(affiliations), tx.ReplaceUserAffiliations(ctx, user.ID, affiliationIDList(affiliations))
		},
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GivePermissionToRole grants permissions at role level. Both the role and
// every permission must exist.
func (r *Resolver) GivePermissionToRole(ctx context.Context, ref RoleRef, perms ...PermissionRef) (*Role, error) {
	return r.changeRolePermissions(ctx, ref, &mutation{
		operation: "give_role_permission",
		eventType: events.EventTypeRolePermissionsGranted,
	}, func(tx Store, role *authzDatamodel.Role) ([]string, error) {
		resolvedPerms, err := resolvePermissions(ctx, tx, perms, true)
		if err != nil {
			return nil, err
		}
		return permissionLabels(resolvedPerms), tx.AttachRolePermissions(ctx, role.ID, permissionIDs(resolvedPerms))
	})
}

// RevokePermissionFromRole requires the role to exist; unknown permissions are
// ignored.
func (r *Resolver) RevokePermissionFromRole(ctx context.Context, ref RoleRef, perms ...PermissionRef) (*Role, error) {
	return r.changeRolePermissions(ctx, ref, &mutation{
		operation: "revoke_role_permission",
		eventType: events.EventTypeRolePermissionsRevoked,
	}, func(tx Store, role *authzDatamodel.Role) ([]string, error) {
		resolvedPerms, err := resolvePermissions(ctx, tx, perms, false)
		if err != nil {
			return nil, err
		}
		return permissionLabels(resolvedPerms), tx.DetachRolePermissions(ctx, role.ID, permissionIDs(resolvedPerms))
	})
}

// changeRolePermissions resolves the subject role inside the transaction, so
// a role deleted concurrently reports NotFoundError, then runs change.
func (r *Resolver) changeRolePermissions(ctx context.Context, ref RoleRef, m *mutation, change func(tx Store, role *authzDatamodel.Role) ([]string, error)) (*Role, error) {
	var resolved *authzDatamodel.Role
	m.subjectType = events.SubjectRole
	m.apply = func(tx Store) ([]string, error) {
		role, err := resolveRole(ctx, tx, ref)
		if err != nil {
			return nil, err
		}
		if role == nil {
			return nil, &NotFoundError{Kind: KindRole, Name: refLabel(ref)}
		}
		resolved = role
		m.subjectID = role.ID
		return change(tx, role)
	}

	if err := r.run(ctx, m); err != nil {
		return nil, err
	}

	role := RoleFromDataModel(resolved)
	return &role, nil
}

func roleLabels(roles []*authzDatamodel.Role) []string {
	labels := make([]string, 0, len(roles))
	for _, role := range roles {
		labels = append(labels, entityLabel(role.ID, role.Name))
	}
	return labels
}

func permissionIDs(perms []*authzDatamodel.Permission) []int64 {
	ids := make([]int64, 0, len(perms))
	for _, p := range perms {
		ids = append(ids, p.ID)
	}
	return ids
}

func permissionLabels(perms []*authzDatamodel.Permission) []string {
	labels := make([]string, 0, len(perms))
	for _, p := range perms {
		labels = append(labels, entityLabel(p.ID, p.Name))
	}
	return labels
}

func affiliationIDList(affiliations []*authzDatamodel.Affiliation) []int64 {
	ids := make([]int64, 0, len(affiliations))
	for _, a := range affiliations {
		ids = append(ids, a.ID)
	}
	return ids
}

func affiliationLabels(affiliations []*authzDatamodel.Affiliation) []string {
	labels := make([]string, 0, len(affiliations))
	for _, a := range affiliations {
		labels = append(labels, strconv.FormatInt(a.ID, 10))
	}
	return labels
}
