package member

import (
	"time"

	memberDatamodel "github.com/frahmantamala/membership-portal/internal/core/datamodel/member"
)

const (
	PermissionView = "members.view"

	DefaultPageSize = 20
	MaxPageSize     = 100
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusAlumni   = "alumni"
)

type Member struct {
	ID            int64     `json:"id"`
	AffiliationID int64     `json:"affiliation_id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

func FromDataModel(m *memberDatamodel.Member) *Member {
	return &Member{
		ID:            m.ID,
		AffiliationID: m.AffiliationID,
		Name:          m.Name,
		Email:         m.Email,
		Status:        m.Status,
		CreatedAt:     m.CreatedAt,
	}
}

// Filter narrows a member listing. Zero values disable a filter. Page is
// 1-based.
type Filter struct {
	AffiliationID   int64  `json:"affiliation_id,omitempty"`
	AffiliationType string `json:"affiliation_type,omitempty"`
	Search          string `json:"search,omitempty"`
	Status          string `json:"status,omitempty"`
	Page            int    `json:"page,omitempty"`
	PageSize        int    `json:"page_size,omitempty"`
}

// Normalized returns a copy with defaults applied and the page size capped.
func (f Filter) Normalized() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return f
}

func (f Filter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

type Page struct {
	Members  []*Member `json:"members"`
	Total    int64     `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}
