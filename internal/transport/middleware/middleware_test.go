package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"

	"github.com/frahmantamala/membership-portal/internal"
	"github.com/frahmantamala/membership-portal/internal/authz"
	authzPostgres "github.com/frahmantamala/membership-portal/internal/authz/postgres"
	"github.com/frahmantamala/membership-portal/internal/core/datamodel"
	authzDatamodel "github.com/frahmantamala/membership-portal/internal/core/datamodel/authz"
	"github.com/frahmantamala/membership-portal/internal/transport/middleware"
	"github.com/go-chi/chi"
	chimiddleware "github.com/go-chi/chi/middleware"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestMiddleware(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Middleware Suite")
}

type failingChecker struct{}

func (failingChecker) Can(ctx context.Context, user *authz.User, permission string) (bool, error) {
	return false, errors.New("connection refused")
}

func (failingChecker) FindUser(ctx context.Context, id int64) (*authz.User, error) {
	return nil, errors.New("connection refused")
}

var _ = Describe("Authorization middleware", func() {
	var (
		ctx      context.Context
		log      *slog.Logger
		resolver *authz.Resolver
		router   *chi.Mux

		viewer, outsider *authz.User
	)

	do := func(userID int64) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/members", nil)
		if userID != 0 {
			req.Header.Set(middleware.UserHeader, strconv.FormatInt(userID, 10))
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	errorCode := func(rec *httptest.ResponseRecorder) internal.ErrorCode {
		var body struct {
			Error struct {
				Code internal.ErrorCode `json:"code"`
			} `json:"error"`
		}
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		return body.Error.Code
	}

	BeforeEach(func() {
		ctx = context.Background()
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		sqlDB.SetMaxOpenConns(1)
		Expect(datamodel.AutoMigrate(db)).To(Succeed())

		Expect(db.Create(&authzDatamodel.Role{Name: "staff"}).Error).To(Succeed())
		Expect(db.Create(&authzDatamodel.Permission{Name: "members.view"}).Error).To(Succeed())

		resolver = authz.NewResolver(authzPostgres.NewStore(db), log)

		v := authzDatamodel.User{Email: "viewer@example.org", Name: "viewer"}
		o := authzDatamodel.User{Email: "outsider@example.org", Name: "outsider"}
		Expect(db.Create(&v).Error).To(Succeed())
		Expect(db.Create(&o).Error).To(Succeed())
		viewer, outsider = authz.UserFromDataModel(&v), authz.UserFromDataModel(&o)

		_, err = resolver.GivePermissionToRole(ctx, authz.RoleName("staff"), authz.PermissionName("members.view"))
		Expect(err).NotTo(HaveOccurred())
		_, err = resolver.AssignRole(ctx, viewer, authz.RoleName("staff"))
		Expect(err).NotTo(HaveOccurred())

		router = chi.NewRouter()
		router.Use(chimiddleware.RequestID)
		router.Use(middleware.TraceContext)
		router.Use(middleware.Identity(resolver, log))
	})

	Describe("RequirePermission", func() {
		BeforeEach(func() {
			router.With(middleware.RequirePermission(resolver, "members.view", log)).
				Get("/members", func(w http.ResponseWriter, r *http.Request) {
					user := internal.UserFromContext(r.Context())
					w.Write([]byte(user.Name))
				})
		})

		It("should pass a user holding the permission through a role", func() {
			rec := do(viewer.ID)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(Equal("viewer"))
			Expect(rec.Header().Get(middleware.TraceHeader)).NotTo(BeEmpty())
		})

		It("should forbid a user without the permission", func() {
			rec := do(outsider.ID)
			Expect(rec.Code).To(Equal(http.StatusForbidden))
			Expect(errorCode(rec)).To(Equal(internal.ErrCodeForbiddenAccess))
		})

		It("should reject anonymous and unknown users", func() {
			Expect(do(0).Code).To(Equal(http.StatusUnauthorized))
			Expect(do(999).Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("RequireRole", func() {
		BeforeEach(func() {
			router.With(middleware.RequireRole(resolver, log, authz.RoleNames("staff", "super_admin")...)).
				Get("/members", func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusNoContent)
				})
		})

		It("should pass a user holding any of the roles", func() {
			Expect(do(viewer.ID).Code).To(Equal(http.StatusNoContent))
		})

		It("should forbid other users", func() {
			Expect(do(outsider.ID).Code).To(Equal(http.StatusForbidden))
		})
	})

	Describe("failures", func() {
		It("should answer 500 when the permission check fails", func() {
			router.With(middleware.RequirePermission(failingChecker{}, "members.view", log)).
				Get("/members", func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusOK)
				})

			rec := do(viewer.ID)
			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(errorCode(rec)).To(Equal(internal.ErrCodeAuthorizationCheck))
		})

		It("should answer 500 when the user cannot be loaded", func() {
			r := chi.NewRouter()
			r.Use(middleware.Identity(failingChecker{}, log))
			r.Get("/members", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/members", nil)
			req.Header.Set(middleware.UserHeader, "1")
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		})
	})
})

var _ = Describe("TraceContext", func() {
	It("should keep an incoming trace id", func() {
		h := middleware.TraceContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(middleware.TraceHeader, "trace-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		Expect(rec.Header().Get(middleware.TraceHeader)).To(Equal("trace-123"))
	})
})
