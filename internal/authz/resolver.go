package authz

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	authzDatamodel "github.com/frahmantamala/membership-portal/internal/core/datamodel/authz"
	"github.com/frahmantamala/membership-portal/internal/core/events"
	"github.com/frahmantamala/membership-portal/internal/metrics"
)

// Publisher receives an event after every committed mutation.
type Publisher interface {
	PublishSync(ctx context.Context, event events.Event) error
}

type Option func(*Resolver)

func WithPublisher(p Publisher) Option {
	return func(r *Resolver) {
		r.publisher = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// Resolver answers role and permission questions for a user and mutates the
// user's assignments. Nothing is cached: every call reads the store.
type Resolver struct {
	store     Store
	logger    *slog.Logger
	publisher Publisher
	metrics   *metrics.Metrics
}

func NewResolver(store Store, logger *slog.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		store:  store,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) HasRole(ctx context.Context, user *User, ref RoleRef) (bool, error) {
	return r.HasAnyRole(ctx, user, ref)
}

// HasAnyRole is false for an empty list.
func (r *Resolver) HasAnyRole(ctx context.Context, user *User, refs ...RoleRef) (bool, error) {
	if user == nil || len(refs) == 0 {
		return false, nil
	}

	roles, err := r.userRoles(ctx, user)
	if err != nil {
		r.metrics.ObserveDecision("role", false, err)
		return false, err
	}

	for _, ref := range refs {
		if holdsRole(roles, ref) {
			r.metrics.ObserveDecision("role", true, nil)
			return true, nil
		}
	}

	r.metrics.ObserveDecision("role", false, nil)
	r.logger.Debug("role check denied", "user_id", user.ID, "roles", refLabels(refs))
	return false, nil
}

// HasAllRoles is true for an empty list. An anonymous user holds nothing, so
// a nil user gets false even for an empty list.
func (r *Resolver) HasAllRoles(ctx context.Context, user *User, refs ...RoleRef) (bool, error) {
	if user == nil {
		return false, nil
	}
	if len(refs) == 0 {
		return true, nil
	}

	roles, err := r.userRoles(ctx, user)
	if err != nil {
		r.metrics.ObserveDecision("role", false, err)
		return false, err
	}

	for _, ref := range refs {
		if !holdsRole(roles, ref) {
			r.metrics.ObserveDecision("role", false, nil)
			r.logger.Debug("role check denied", "user_id", user.ID, "missing", refLabel(ref))
			return false, nil
		}
	}

	r.metrics.ObserveDecision("role", true, nil)
	return true, nil
}

// HasPermission looks at the direct grants first and only loads role
// permissions when the name is not granted directly.
func (r *Resolver) HasPermission(ctx context.Context, user *User, name string) (bool, error) {
	if user == nil {
		return false, nil
	}

	granted, err := r.hasPermission(ctx, user, name)
	r.metrics.ObserveDecision("permission", granted, err)
	if err != nil {
		return false, err
	}
	if !granted {
		r.logger.Debug("permission check denied", "user_id", user.ID, "permission", name)
	}
	return granted, nil
}

// Can is the authorization gate used by services and middleware.
func (r *Resolver) Can(ctx context.Context, user *User, permission string) (bool, error) {
	return r.HasPermission(ctx, user, permission)
}

func (r *Resolver) hasPermission(ctx context.Context, user *User, name string) (bool, error) {
	direct, err := r.store.UserPermissions(ctx, user.ID)
	if err != nil {
		return false, fmt.Errorf("authz: load direct permissions: %w", err)
	}
	for _, p := range direct {
		if p.Name == name {
			return true, nil
		}
	}

	roles, err := r.userRoles(ctx, user)
	if err != nil {
		return false, err
	}
	if len(roles) == 0 {
		return false, nil
	}

	byRole, err := r.store.RolePermissions(ctx, roleIDs(roles))
	if err != nil {
		return false, fmt.Errorf("authz: load role permissions: %w", err)
	}
	for _, perms := range byRole {
		for _, p := range perms {
			if p.Name == name {
				return true, nil
			}
		}
	}
	return false, nil
}

// HasAnyPermission is false for an empty list.
func (r *Resolver) HasAnyPermission(ctx context.Context, user *User, names ...string) (bool, error) {
	if user == nil || len(names) == 0 {
		return false, nil
	}

	set, err := r.effectivePermissions(ctx, user)
	if err != nil {
		r.metrics.ObserveDecision("permission", false, err)
		return false, err
	}

	for _, name := range names {
		if _, ok := set[name]; ok {
			r.metrics.ObserveDecision("permission", true, nil)
			return true, nil
		}
	}

	r.metrics.ObserveDecision("permission", false, nil)
	r.logger.Debug("permission check denied", "user_id", user.ID, "permissions", names)
	return false, nil
}

// HasAllPermissions is true for an empty list, except for a nil user, which
// always gets false.
func (r *Resolver) HasAllPermissions(ctx context.Context, user *User, names ...string) (bool, error) {
	if user == nil {
		return false, nil
	}
	if len(names) == 0 {
		return true, nil
	}

	set, err := r.effectivePermissions(ctx, user)
	if err != nil {
		r.metrics.ObserveDecision("permission", false, err)
		return false, err
	}

	for _, name := range names {
		if _, ok := set[name]; !ok {
			r.metrics.ObserveDecision("permission", false, nil)
			r.logger.Debug("permission check denied", "user_id", user.ID, "missing", name)
			return false, nil
		}
	}

	r.metrics.ObserveDecision("permission", true, nil)
	return true, nil
}

// GetAllPermissions returns the effective permission set sorted by name.
func (r *Resolver) GetAllPermissions(ctx context.Context, user *User) ([]Permission, error) {
	if user == nil {
		return []Permission{}, nil
	}

	set, err := r.effectivePermissions(ctx, user)
	if err != nil {
		return nil, err
	}

	perms := make([]Permission, 0, len(set))
	for _, p := range set {
		perms = append(perms, PermissionFromDataModel(p))
	}
	sort.Slice(perms, func(i, j int) bool {
		return perms[i].Name < perms[j].Name
	})
	return perms, nil
}

// GetPrimaryRole returns the earliest assigned role, ties broken by the lowest
// role id, or nil when the user has no roles.
func (r *Resolver) GetPrimaryRole(ctx context.Context, user *User) (*Role, error) {
	if user == nil {
		return nil, nil
	}

	roles, err := r.userRoles(ctx, user)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, nil
	}

	primary := RoleFromDataModel(roles[0])
	return &primary, nil
}

func (r *Resolver) GetRoleNames(ctx context.Context, user *User) ([]string, error) {
	if user == nil {
		return []string{}, nil
	}

	roles, err := r.userRoles(ctx, user)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	return names, nil
}

// GetAffiliationIDs returns the distinct affiliation ids of the user in
// ascending order.
func (r *Resolver) GetAffiliationIDs(ctx context.Context, user *User) ([]int64, error) {
	if user == nil {
		return []int64{}, nil
	}

	ids, err := r.store.UserAffiliationIDs(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("authz: load affiliations: %w", err)
	}

	ids = uniqueIDs(ids)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *Resolver) userRoles(ctx context.Context, user *User) ([]*authzDatamodel.Role, error) {
	roles, err := r.store.UserRoles(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("authz: load roles: %w", err)
	}
	return roles, nil
}

// effectivePermissions builds the union of direct and role permissions keyed
// by name.
func (r *Resolver) effectivePermissions(ctx context.Context, user *User) (map[string]*authzDatamodel.Permission, error) {
	direct, err := r.store.UserPermissions(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("authz: load direct permissions: %w", err)
	}

	set := make(map[string]*authzDatamodel.Permission, len(direct))
	for _, p := range direct {
		set[p.Name] = p
	}

	roles, err := r.userRoles(ctx, user)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return set, nil
	}

	byRole, err := r.store.RolePermissions(ctx, roleIDs(roles))
	if err != nil {
		return nil, fmt.Errorf("authz: load role permissions: %w", err)
	}
	for _, role := range roles {
		for _, p := range byRole[role.ID] {
			if _, ok := set[p.Name]; !ok {
				set[p.Name] = p
			}
		}
	}
	return set, nil
}

// holdsRole matches entity references by id and name references by name.
func holdsRole(roles []*authzDatamodel.Role, ref RoleRef) bool {
	for _, role := range roles {
		switch v := ref.(type) {
		case RoleName:
			if role.Name == string(v) {
				return true
			}
		case Role:
			if matchRoleEntity(role, v) {
				return true
			}
		case *Role:
			if v != nil && matchRoleEntity(role, *v) {
				return true
			}
		}
	}
	return false
}

func matchRoleEntity(role *authzDatamodel.Role, ref Role) bool {
	if ref.ID > 0 {
		return role.ID == ref.ID
	}
	return ref.Name != "" && role.Name == ref.Name
}

func roleIDs(roles []*authzDatamodel.Role) []int64 {
	ids := make([]int64, 0, len(roles))
	for _, role := range roles {
		ids = append(ids, role.ID)
	}
	return ids
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// FindUser loads a user by id. An unknown id is a NotFoundError.
func (r *Resolver) FindUser(ctx context.Context, id int64) (*User, error) {
	user, err := r.store.UserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("authz: lookup user %d: %w", id, err)
	}
	if user == nil {
		return nil, &NotFoundError{Kind: KindUser, Name: strconv.FormatInt(id, 10)}
	}
	return UserFromDataModel(user), nil
}
