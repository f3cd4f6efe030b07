package postgres

import (
	"context"
	"errors"

	"github.com/frahmantamala/membership-portal/internal/authz"
	authzDatamodel "github.com/frahmantamala/membership-portal/internal/core/datamodel/authz"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store implements authz.Store on gorm. It runs unchanged on the postgres
// and sqlite dialectors.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) authz.Store {
	return &Store{db: db}
}

func (s *Store) UserRoles(ctx context.Context, userID int64) ([]*authzDatamodel.Role, error) {
	var roles []*authzDatamodel.Role
	err := s.db.WithContext(ctx).
		Model(&authzDatamodel.Role{}).
		Select("roles.*").
		Joins("JOIN user_has_roles ON user_has_roles.role_id = roles.id").
		Where("user_has_roles.user_id = ?", userID).
		Order("user_has_roles.created_at ASC").
		Order("roles.id ASC").
		Find(&roles).Error
	return roles, err
}

func (s *Store) UserPermissions(ctx context.Context, userID int64) ([]*authzDatamodel.Permission, error) {
	var perms []*authzDatamodel.Permission
	err := s.db.WithContext(ctx).
		Model(&authzDatamodel.Permission{}).
		Select("permissions.*").
		Joins("JOIN user_has_permissions ON user_has_permissions.permission_id = permissions.id").
		Where("user_has_permissions.user_id = ?", userID).
		Order("permissions.name ASC").
		Find(&perms).Error
	return perms, err
}

type rolePermissionRow struct {
	RoleID       int64
	PermissionID int64
	Name         string
	Description  string
}

func (s *Store) RolePermissions(ctx context.Context, roleIDs []int64) (map[int64][]*authzDatamodel.Permission, error) {
	result := make(map[int64][]*authzDatamodel.Permission, len(roleIDs))
	if len(roleIDs) == 0 {
		return result, nil
	}

	var rows []rolePermissionRow
	err := s.db.WithContext(ctx).
		Table("role_has_permissions").
		Select("role_has_permissions.role_id, permissions.id AS permission_id, permissions.name, permissions.description").
		Joins("JOIN permissions ON permissions.id = role_has_permissions.permission_id").
		Where("role_has_permissions.role_id IN ?", roleIDs).
		Order("permissions.name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		result[row.RoleID] = append(result[row.RoleID], &authzDatamodel.Permission{
			ID:          row.PermissionID,
			Name:        row.Name,
			Description: row.Description,
		})
	}
	return result, nil
}

func (s *Store) UserAffiliationIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).
		Model(&authzDatamodel.UserAffiliation{}).
		Where("user_id = ?", userID).
		Distinct().
		Order("affiliation_id ASC").
		Pluck("affiliation_id", &ids).Error
	return ids, err
}

func (s *Store) UserByID(ctx context.Context, id int64) (*authzDatamodel.User, error) {
	var user authzDatamodel.User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) RoleByID(ctx context.Context, id int64) (*authzDatamodel.Role, error) {
	var role authzDatamodel.Role
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}

func (s *Store) RoleByName(ctx context.Context, name string) (*authzDatamodel.Role, error) {
	var role authzDatamodel.Role
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}

func (s *Store) PermissionByID(ctx context.Context, id int64) (*authzDatamodel.Permission, error) {
	var perm authzDatamodel.Permission
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&perm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &perm, nil
}

func (s *Store) PermissionByName(ctx context.Context, name string) (*authzDatamodel.Permission, error) {
	var perm authzDatamodel.Permission
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&perm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &perm, nil
}

func (s *Store) AffiliationByID(ctx context.Context, id int64) (*authzDatamodel.Affiliation, error) {
	var affiliation authzDatamodel.Affiliation
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&affiliation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &affiliation, nil
}

func (s *Store) AttachUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	if len(roleIDs) == 0 {
		return nil
	}
	rows := make([]authzDatamodel.UserRole, 0, len(roleIDs))
	for _, id := range roleIDs {
		rows = append(rows, authzDatamodel.UserRole{UserID: userID, RoleID: id})
	}
	return s.insertIgnore(ctx, &rows)
}

func (s *Store) DetachUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	if len(roleIDs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("user_id = ? AND role_id IN ?", userID, roleIDs).
		Delete(&authzDatamodel.UserRole{}).Error
}

func (s *Store) ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	return s.replace(ctx, &authzDatamodel.UserRole{}, "role_id", userID, roleIDs, func(tx *Store) error {
		return tx.AttachUserRoles(ctx, userID, roleIDs)
	})
}

func (s *Store) AttachUserPermissions(ctx context.Context, userID int64, permissionIDs []int64) error {
	if len(permissionIDs) == 0 {
		return nil
	}
	rows := make([]authzDatamodel.UserPermission, 0, len(permissionIDs))
	for _, id := range permissionIDs {
		rows = append(rows, authzDatamodel.UserPermission{UserID: userID, PermissionID: id})
	}
	return s.insertIgnore(ctx, &rows)
}

func (s *Store) DetachUserPermissions(ctx context.Context, userID int64, permissionIDs []int64) error {
	if len(permissionIDs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("user_id = ? AND permission_id IN ?", userID, permissionIDs).
		Delete(&authzDatamodel.UserPermission{}).Error
}

func (s *Store) ReplaceUserPermissions(ctx context.Context, userID int64, permissionIDs []int64) error {
	return s.replace(ctx, &authzDatamodel.UserPermission{}, "permission_id", userID, permissionIDs, func(tx *Store) error {
		return tx.AttachUserPermissions(ctx, userID, permissionIDs)
	})
}

func (s *Store) AttachUserAffiliations(ctx context.Context, userID int64, affiliationIDs []int64) error {
	if len(affiliationIDs) == 0 {
		return nil
	}
	rows := make([]authzDatamodel.UserAffiliation, 0, len(affiliationIDs))
	for _, id := range affiliationIDs {
		rows = append(rows, authzDatamodel.UserAffiliation{UserID: userID, AffiliationID: id})
	}
	return s.insertIgnore(ctx, &rows)
}

func (s *Store) DetachUserAffiliations(ctx context.Context, userID int64, affiliationIDs []int64) error {
	if len(affiliationIDs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("user_id = ? AND affiliation_id IN ?", userID, affiliationIDs).
		Delete(&authzDatamodel.UserAffiliation{}).Error
}

func (s *Store) ReplaceUserAffiliations(ctx context.Context, userID int64, affiliationIDs []int64) error {
	return s.replace(ctx, &authzDatamodel.UserAffiliation{}, "affiliation_id", userID, affiliationIDs, func(tx *Store) error {
		return tx.AttachUserAffiliations(ctx, userID, affiliationIDs)
	})
}

func (s *Store) AttachRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if len(permissionIDs) == 0 {
		return nil
	}
	rows := make([]authzDatamodel.RolePermission, 0, len(permissionIDs))
	for _, id := range permissionIDs {
		rows = append(rows, authzDatamodel.RolePermission{RoleID: roleID, PermissionID: id})
	}
	return s.insertIgnore(ctx, &rows)
}

func (s *Store) DetachRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if len(permissionIDs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("role_id = ? AND permission_id IN ?", roleID, permissionIDs).
		Delete(&authzDatamodel.RolePermission{}).Error
}

func (s *Store) Transaction(ctx context.Context, fn func(tx authz.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// insertIgnore creates rows and skips those whose composite key already
// exists.
func (s *Store) insertIgnore(ctx context.Context, rows interface{}) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rows).Error
}

// replace deletes the user's rows outside ids and inserts the missing ones.
// Rows kept by both sets are never touched, so their assignment time survives.
func (s *Store) replace(ctx context.Context, model interface{}, column string, userID int64, ids []int64, attach func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		del := tx.Where("user_id = ?", userID)
		if len(ids) > 0 {
			del = del.Where(column+" NOT IN ?", ids)
		}
		if err := del.Delete(model).Error; err != nil {
			return err
		}
		return attach(&Store{db: tx})
	})
}
