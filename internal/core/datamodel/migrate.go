package datamodel

import (
	"github.com/frahmantamala/membership-portal/internal/core/datamodel/authz"
	"github.com/frahmantamala/membership-portal/internal/core/datamodel/member"
	"gorm.io/gorm"
)

// Models lists every table owned by the portal, parents first.
func Models() []interface{} {
	return []interface{}{
		&authz.User{},
		&authz.Role{},
		&authz.Permission{},
		&authz.Affiliation{},
		&authz.UserRole{},
		&authz.UserPermission{},
		&authz.RolePermission{},
		&authz.UserAffiliation{},
		&member.Member{},
	}
}

// AutoMigrate creates the schema with gorm. Used for the sqlite driver and in
// tests; postgres deployments run the goose migrations instead.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
