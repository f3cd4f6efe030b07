package postgres

import (
	"context"
	"strings"

	"github.com/frahmantamala/membership-portal/internal/affiliation"
	"github.com/frahmantamala/membership-portal/internal/authz"
	memberDatamodel "github.com/frahmantamala/membership-portal/internal/core/datamodel/member"
	"github.com/frahmantamala/membership-portal/internal/member"
	"gorm.io/gorm"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type MemberRepository struct {
	db     *gorm.DB
	scoper *affiliation.Scoper
}

func NewMemberRepository(db *gorm.DB, scoper *affiliation.Scoper) member.RepositoryAPI {
	return &MemberRepository{db: db, scoper: scoper}
}

func (r *MemberRepository) List(ctx context.Context, user *authz.User, filter member.Filter) ([]*memberDatamodel.Member, int64, error) {
	filter = filter.Normalized()

	var total int64
	if err := r.query(ctx, user, filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []*memberDatamodel.Member{}, 0, nil
	}

	var members []*memberDatamodel.Member
	err := r.query(ctx, user, filter).
		Order("name ASC").
		Order("id ASC").
		Limit(filter.PageSize).
		Offset(filter.Offset()).
		Find(&members).Error
	if err != nil {
		return nil, 0, err
	}
	return members, total, nil
}

// query builds a fresh statement so Count and Find do not share clauses.
func (r *MemberRepository) query(ctx context.Context, user *authz.User, filter member.Filter) *gorm.DB {
	scopes := []affiliation.Scope{r.scoper.ForUser(user)}
	if filter.AffiliationID > 0 {
		scopes = append(scopes, r.scoper.ForAffiliation(filter.AffiliationID))
	}
	if filter.AffiliationType != "" {
		scopes = append(scopes, r.scoper.ForAffiliationType(filter.AffiliationType))
	}

	q := r.db.WithContext(ctx).Model(&memberDatamodel.Member{}).Scopes(scopes...)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(search)) + "%"
		q = q.Where(`(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\')`, pattern, pattern)
	}
	return q
}
