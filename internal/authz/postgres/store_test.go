package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/frahmantamala/membership-portal/internal/authz"
	authzPostgres "github.com/frahmantamala/membership-portal/internal/authz/postgres"
	"github.com/frahmantamala/membership-portal/internal/core/datamodel"
	authzDatamodel "github.com/frahmantamala/membership-portal/internal/core/datamodel/authz"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestAuthzPostgres(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Authz Postgres Suite")
}

func openSQLite() *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	Expect(err).NotTo(HaveOccurred())

	// a second connection would open a different in-memory database
	sqlDB, err := db.DB()
	Expect(err).NotTo(HaveOccurred())
	sqlDB.SetMaxOpenConns(1)

	Expect(datamodel.AutoMigrate(db)).To(Succeed())
	return db
}

var _ = Describe("Authz Store", func() {
	var (
		ctx   context.Context
		db    *gorm.DB
		store authz.Store

		user                   authzDatamodel.User
		staff, editor, auditor authzDatamodel.Role
		create, view           authzDatamodel.Permission
		north, south           authzDatamodel.Affiliation
	)

	BeforeEach(func() {
		ctx = context.Background()
		db = openSQLite()
		store = authzPostgres.NewStore(db)

		user = authzDatamodel.User{Email: "u1@example.org", Name: "u1"}
		Expect(db.Create(&user).Error).To(Succeed())

		staff = authzDatamodel.Role{Name: "staff"}
		editor = authzDatamodel.Role{Name: "editor"}
		auditor = authzDatamodel.Role{Name: "auditor"}
		Expect(db.Create(&staff).Error).To(Succeed())
		Expect(db.Create(&editor).Error).To(Succeed())
		Expect(db.Create(&auditor).Error).To(Succeed())

		create = authzDatamodel.Permission{Name: "users.create"}
		view = authzDatamodel.Permission{Name: "members.view"}
		Expect(db.Create(&create).Error).To(Succeed())
		Expect(db.Create(&view).Error).To(Succeed())

		north = authzDatamodel.Affiliation{Name: "North Institute", Type: "institute"}
		south = authzDatamodel.Affiliation{Name: "South College", Type: "college"}
		Expect(db.Create(&north).Error).To(Succeed())
		Expect(db.Create(&south).Error).To(Succeed())
	})

	Describe("lookups", func() {
		It("should return nil for unknown names and ids", func() {
			role, err := store.RoleByName(ctx, "ghost")
			Expect(err).NotTo(HaveOccurred())
			Expect(role).To(BeNil())

			perm, err := store.PermissionByName(ctx, "ghost.view")
			Expect(err).NotTo(HaveOccurred())
			Expect(perm).To(BeNil())

			affiliation, err := store.AffiliationByID(ctx, 999)
			Expect(err).NotTo(HaveOccurred())
			Expect(affiliation).To(BeNil())

			u, err := store.UserByID(ctx, 999)
			Expect(err).NotTo(HaveOccurred())
			Expect(u).To(BeNil())

			role, err = store.RoleByID(ctx, 999)
			Expect(err).NotTo(HaveOccurred())
			Expect(role).To(BeNil())

			perm, err = store.PermissionByID(ctx, 999)
			Expect(err).NotTo(HaveOccurred())
			Expect(perm).To(BeNil())
		})

		It("should find stored entities", func() {
			role, err := store.RoleByName(ctx, "editor")
			Expect(err).NotTo(HaveOccurred())
			Expect(role.ID).To(Equal(editor.ID))

			role, err = store.RoleByID(ctx, editor.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(role.Name).To(Equal("editor"))

			affiliation, err := store.AffiliationByID(ctx, south.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(affiliation.Type).To(Equal("college"))
		})
	})

	Describe("user roles", func() {
		It("should not duplicate an attached role", func() {
			Expect(store.AttachUserRoles(ctx, user.ID, []int64{staff.ID})).To(Succeed())
			Expect(store.AttachUserRoles(ctx, user.ID, []int64{staff.ID, editor.ID})).To(Succeed())

			var count int64
			Expect(db.Model(&authzDatamodel.UserRole{}).Where("user_id = ? AND role_id = ?", user.ID, staff.ID).Count(&count).Error).To(Succeed())
			Expect(count).To(Equal(int64(1)))
		})

		It("should order roles by assignment time then id", func() {
			base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			Expect(db.Create(&authzDatamodel.UserRole{UserID: user.ID, RoleID: auditor.ID, CreatedAt: base}).Error).To(Succeed())
			Expect(db.Create(&authzDatamodel.UserRole{UserID: user.ID, RoleID: editor.ID, CreatedAt: base.Add(time.Hour)}).Error).To(Succeed())
			Expect(db.Create(&authzDatamodel.UserRole{UserID: user.ID, RoleID: staff.ID, CreatedAt: base.Add(time.Hour)}).Error).To(Succeed())

			roles, err := store.UserRoles(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(roles).To(HaveLen(3))
			Expect(roles[0].Name).To(Equal("auditor"))
			Expect(roles[1].Name).To(Equal("staff"))
			Expect(roles[2].Name).To(Equal("editor"))
		})

		It("should ignore detaching roles that are not held", func() {
			Expect(store.DetachUserRoles(ctx, user.ID, []int64{editor.ID})).To(Succeed())
			Expect(store.DetachUserRoles(ctx, user.ID, nil)).To(Succeed())
		})

		It("should replace the role set keeping shared rows", func() {
			base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			Expect(db.Create(&authzDatamodel.UserRole{UserID: user.ID, RoleID: staff.ID, CreatedAt: base}).Error).To(Succeed())
			Expect(store.AttachUserRoles(ctx, user.ID, []int64{editor.ID})).To(Succeed())

			Expect(store.ReplaceUserRoles(ctx, user.ID, []int64{staff.ID, auditor.ID})).To(Succeed())

			var rows []authzDatamodel.UserRole
			Expect(db.Where("user_id = ?", user.ID).Order("role_id").Find(&rows).Error).To(Succeed())
			Expect(rows).To(HaveLen(2))
			Expect(rows[0].RoleID).To(Equal(staff.ID))
			Expect(rows[0].CreatedAt.Equal(base)).To(BeTrue())
			Expect(rows[1].RoleID).To(Equal(auditor.ID))
		})

		It("should clear the role set when replaced with nothing", func() {
			Expect(store.AttachUserRoles(ctx, user.ID, []int64{staff.ID, editor.ID})).To(Succeed())
			Expect(store.ReplaceUserRoles(ctx, user.ID, nil)).To(Succeed())

			roles, err := store.UserRoles(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(roles).To(BeEmpty())
		})
	})

	Describe("permissions", func() {
		It("should group role permissions by role", func() {
			Expect(store.AttachRolePermissions(ctx, editor.ID, []int64{create.ID, view.ID})).To(Succeed())
			Expect(store.AttachRolePermissions(ctx, staff.ID, []int64{view.ID})).To(Succeed())

			byRole, err := store.RolePermissions(ctx, []int64{editor.ID, staff.ID, auditor.ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(byRole[editor.ID]).To(HaveLen(2))
			Expect(byRole[staff.ID]).To(HaveLen(1))
			Expect(byRole[staff.ID][0].Name).To(Equal("members.view"))
			Expect(byRole).NotTo(HaveKey(auditor.ID))
		})

		It("should detach role permissions", func() {
			Expect(store.AttachRolePermissions(ctx, editor.ID, []int64{create.ID, view.ID})).To(Succeed())
			Expect(store.DetachRolePermissions(ctx, editor.ID, []int64{create.ID})).To(Succeed())

			byRole, err := store.RolePermissions(ctx, []int64{editor.ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(byRole[editor.ID]).To(HaveLen(1))
		})

		It("should return an empty map without role ids", func() {
			byRole, err := store.RolePermissions(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(byRole).To(BeEmpty())
		})

		It("should manage direct permissions", func() {
			Expect(store.AttachUserPermissions(ctx, user.ID, []int64{create.ID, create.ID})).To(Succeed())
			Expect(store.ReplaceUserPermissions(ctx, user.ID, []int64{view.ID})).To(Succeed())

			perms, err := store.UserPermissions(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(perms).To(HaveLen(1))
			Expect(perms[0].Name).To(Equal("members.view"))

			Expect(store.DetachUserPermissions(ctx, user.ID, []int64{view.ID})).To(Succeed())
			perms, err = store.UserPermissions(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(perms).To(BeEmpty())
		})
	})

	Describe("affiliations", func() {
		It("should return distinct ids in ascending order", func() {
			Expect(store.AttachUserAffiliations(ctx, user.ID, []int64{south.ID, north.ID, south.ID})).To(Succeed())

			ids, err := store.UserAffiliationIDs(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]int64{north.ID, south.ID}))
		})

		It("should replace and detach affiliations", func() {
			Expect(store.AttachUserAffiliations(ctx, user.ID, []int64{north.ID})).To(Succeed())
			Expect(store.ReplaceUserAffiliations(ctx, user.ID, []int64{south.ID})).To(Succeed())

			ids, err := store.UserAffiliationIDs(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]int64{south.ID}))

			Expect(store.DetachUserAffiliations(ctx, user.ID, []int64{south.ID})).To(Succeed())
			ids, err = store.UserAffiliationIDs(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(BeEmpty())
		})
	})

	Describe("Transaction", func() {
		It("should roll back every write when fn fails", func() {
			boom := errors.New("boom")
			err := store.Transaction(ctx, func(tx authz.Store) error {
				Expect(tx.AttachUserRoles(ctx, user.ID, []int64{staff.ID})).To(Succeed())
				return boom
			})
			Expect(err).To(MatchError(boom))

			roles, err := store.UserRoles(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(roles).To(BeEmpty())
		})

		It("should commit when fn succeeds", func() {
			Expect(store.Transaction(ctx, func(tx authz.Store) error {
				return tx.AttachUserRoles(ctx, user.ID, []int64{staff.ID})
			})).To(Succeed())

			roles, err := store.UserRoles(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(roles).To(HaveLen(1))
		})
	})
})

var _ = Describe("Authz Store failures", func() {
	var (
		mock  sqlmock.Sqlmock
		store authz.Store
	)

	BeforeEach(func() {
		sqlDB, m, err := sqlmock.New()
		Expect(err).NotTo(HaveOccurred())
		mock = m
		DeferCleanup(func() {
			mock.ExpectClose()
			Expect(sqlDB.Close()).To(Succeed())
			Expect(mock.ExpectationsWereMet()).To(Succeed())
		})

		db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
			Logger:               logger.Default.LogMode(logger.Silent),
			DisableAutomaticPing: true,
		})
		Expect(err).NotTo(HaveOccurred())

		store = authzPostgres.NewStore(db)
	})

	It("should propagate query errors", func() {
		mock.ExpectQuery("SELECT roles").WillReturnError(errors.New("connection refused"))

		_, err := store.UserRoles(context.Background(), 1)
		Expect(err).To(MatchError(ContainSubstring("connection refused")))
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	It("should propagate lookup errors other than not found", func() {
		mock.ExpectQuery("SELECT").WillReturnError(errors.New("timeout"))

		role, err := store.RoleByName(context.Background(), "staff")
		Expect(err).To(MatchError(ContainSubstring("timeout")))
		Expect(role).To(BeNil())
	})

	It("should propagate id lookup errors", func() {
		mock.ExpectQuery("SELECT").WillReturnError(errors.New("timeout"))

		perm, err := store.PermissionByID(context.Background(), 7)
		Expect(err).To(MatchError(ContainSubstring("timeout")))
		Expect(perm).To(BeNil())
	})

	It("should fail when the transaction cannot begin", func() {
		mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

		called := false
		err := store.Transaction(context.Background(), func(tx authz.Store) error {
			called = true
			return nil
		})
		Expect(err).To(MatchError(ContainSubstring("too many connections")))
		Expect(called).To(BeFalse())
	})
})
