package member

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/membership-portal/internal"
	"github.com/frahmantamala/membership-portal/internal/authz"
	"github.com/frahmantamala/membership-portal/internal/core/common/validation"
	memberDatamodel "github.com/frahmantamala/membership-portal/internal/core/datamodel/member"
)

type RepositoryAPI interface {
	// List returns one page of the members user may see and the total
	// number of visible members matching filter.
	List(ctx context.Context, user *authz.User, filter Filter) ([]*memberDatamodel.Member, int64, error)
}

// Gate is the permission check run before any member is read.
type Gate interface {
	Can(ctx context.Context, user *authz.User, permission string) (bool, error)
}

type Service struct {
	repo   RepositoryAPI
	gate   Gate
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, gate Gate, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		gate:   gate,
		logger: logger,
	}
}

func (s *Service) ListMembers(ctx context.Context, user *authz.User, filter Filter) (*Page, error) {
	if user == nil {
		return nil, internal.ErrUnauthenticated
	}

	if appErr := validateFilter(filter); appErr != nil {
		return nil, appErr
	}

	allowed, err := s.gate.Can(ctx, user, PermissionView)
	if err != nil {
		s.logger.Error("failed to check member access", "user_id", user.ID, "error", err)
		return nil, internal.FromAuthzError(err)
	}
	if !allowed {
		s.logger.Debug("member listing denied", "user_id", user.ID)
		return nil, internal.ErrForbiddenAccess
	}

	filter = filter.Normalized()
	rows, total, err := s.repo.List(ctx, user, filter)
	if err != nil {
		s.logger.Error("failed to list members", "user_id", user.ID, "error", err)
		return nil, internal.NewInternalError("Failed to list members", err)
	}

	members := make([]*Member, 0, len(rows))
	for _, row := range rows {
		members = append(members, FromDataModel(row))
	}

	s.logger.Info("listed members", "user_id", user.ID, "count", len(members), "total", total)
	return &Page{
		Members:  members,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

func validateFilter(filter Filter) *internal.AppError {
	if appErr := validation.ValidatePagination(filter.Page, filter.PageSize, MaxPageSize); appErr != nil {
		return appErr
	}
	if appErr := validation.ValidateSearch(filter.Search); appErr != nil {
		return appErr
	}

	validator := validation.NewValidator()
	validator.Field("status", filter.Status).
		OneOf(internal.ErrCodeInvalidStatus, StatusActive, StatusInactive, StatusAlumni)
	return validator.Validate()
}
