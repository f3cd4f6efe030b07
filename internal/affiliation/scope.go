package affiliation

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/membership-portal/internal/authz"
	"github.com/frahmantamala/membership-portal/internal/metrics"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultColumn = "affiliation_id"

// Scope narrows a gorm query. Scopes compose with db.Scopes in any order.
type Scope = func(*gorm.DB) *gorm.DB

// Resolver is the part of authz.Resolver the scoper depends on.
type Resolver interface {
	HasRole(ctx context.Context, user *authz.User, ref authz.RoleRef) (bool, error)
	GetAffiliationIDs(ctx context.Context, user *authz.User) ([]int64, error)
}

type Option func(*Scoper)

// WithColumn sets the column holding the affiliation id of a row.
func WithColumn(column string) Option {
	return func(s *Scoper) {
		s.column = column
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scoper) {
		s.metrics = m
	}
}

// Scoper builds row-level scopes over affiliation-tagged tables.
type Scoper struct {
	resolver Resolver
	logger   *slog.Logger
	metrics  *metrics.Metrics
	column   string
}

func NewScoper(resolver Resolver, logger *slog.Logger, opts ...Option) *Scoper {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scoper{
		resolver: resolver,
		logger:   logger,
		column:   DefaultColumn,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ForUser restricts the query to the rows user may see. An anonymous user or
// a user without affiliations sees no rows. Holders of the super_admin role
// see everything. The decision is taken when the query executes, using the
// statement context.
func (s *Scoper) ForUser(user *authz.User) Scope {
	return func(db *gorm.DB) *gorm.DB {
		if user == nil {
			s.metrics.ObserveScope(metrics.ScopeAnonymous)
			return matchNothing(db)
		}

		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		bypass, err := s.resolver.HasRole(ctx, user, authz.RoleName(authz.SuperAdminRole))
		if err != nil {
			return s.fail(db, user, err)
		}
		if bypass {
			s.metrics.ObserveScope(metrics.ScopeBypass)
			return db
		}

		ids, err := s.resolver.GetAffiliationIDs(ctx, user)
		if err != nil {
			return s.fail(db, user, err)
		}
		if len(ids) == 0 {
			s.metrics.ObserveScope(metrics.ScopeEmpty)
			s.logger.Debug("user has no affiliations", "user_id", user.ID)
			return matchNothing(db)
		}

		values := make([]interface{}, 0, len(ids))
		for _, id := range ids {
			values = append(values, id)
		}

		s.metrics.ObserveScope(metrics.ScopeRestricted)
		return restrict(db, clause.IN{Column: s.columnRef(), Values: values})
	}
}

// ForAffiliationType keeps rows whose affiliation has the given type.
func (s *Scoper) ForAffiliationType(affiliationType string) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return restrict(db, clause.Expr{
			SQL:  "EXISTS (SELECT 1 FROM affiliations WHERE affiliations.id = ? AND affiliations.type = ?)",
			Vars: []interface{}{s.columnRef(), affiliationType},
		})
	}
}

// ForAffiliation keeps rows of exactly one affiliation.
func (s *Scoper) ForAffiliation(affiliationID int64) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return restrict(db, clause.Eq{Column: s.columnRef(), Value: affiliationID})
	}
}

func (s *Scoper) columnRef() clause.Column {
	return clause.Column{Table: clause.CurrentTable, Name: s.column}
}

// fail attaches err to the query so the terminal call reports it, and still
// restricts the query to nothing.
func (s *Scoper) fail(db *gorm.DB, user *authz.User, err error) *gorm.DB {
	s.metrics.ObserveScope(metrics.OutcomeError)
	s.logger.Error("failed to resolve affiliation scope", "user_id", user.ID, "error", err)
	_ = db.AddError(err)
	return matchNothing(db)
}

func matchNothing(db *gorm.DB) *gorm.DB {
	return restrict(db, clause.Expr{SQL: "1 = 0"})
}

// restrict ANDs cond onto the query. Conditions already on the statement are
// grouped first so a top-level OR cannot escape the restriction.
func restrict(db *gorm.DB, cond clause.Expression) *gorm.DB {
	if c, ok := db.Statement.Clauses["WHERE"]; ok {
		if where, ok := c.Expression.(clause.Where); ok && len(where.Exprs) > 1 {
			where.Exprs = []clause.Expression{clause.And(where.Exprs...)}
			c.Expression = where
			db.Statement.Clauses["WHERE"] = c
		}
	}
	return db.Where(cond)
}
