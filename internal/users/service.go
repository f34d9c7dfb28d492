package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ms-booking/internal/booking"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

var ErrLastAdmin = fmt.Errorf("%w: cannot delete the last admin user", booking.ErrValidation)

type Service struct {
	Store  Store
	Logger *logger.Logger
}

func NewService(store Store, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{Store: store, Logger: log}
}

// ListUsers filters by role when it names a known role and lists everyone otherwise.
func (s *Service) ListUsers(ctx context.Context, role string) ([]models.User, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role != models.RoleAdmin && role != models.RoleUser {
		role = ""
	}
	users, err := s.Store.ListUsers(ctx, role)
	if err != nil {
		return nil, s.infra("list users", err)
	}
	return users, nil
}

// DeleteUser removes a user account. The last remaining admin cannot be removed.
func (s *Service) DeleteUser(ctx context.Context, caller models.Principal, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: user id is required", booking.ErrValidation)
	}
	err := s.Store.WithAdminLock(ctx, func(ctx context.Context, tx Tx) error {
		u, err := tx.GetUser(ctx, id)
		if err != nil {
			return s.lookupError(err, id)
		}
		if u.Role == models.RoleAdmin {
			admins, err := tx.CountAdmins(ctx)
			if err != nil {
				return s.infra("count admins", err)
			}
			if admins <= 1 {
				s.Logger.Warn("USERS", fmt.Sprintf("Refused to delete last admin %s (requested by %s)", id, caller.ID))
				return ErrLastAdmin
			}
		}
		if err := tx.DeleteUser(ctx, id); err != nil {
			return s.lookupError(err, id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.Logger.LogSecurity("USER_DELETED", fmt.Sprintf("user %s deleted by %s", id, caller.ID))
	return nil
}

func (s *Service) lookupError(err error, id string) error {
	if errors.Is(err, models.ErrRecordNotFound) {
		return fmt.Errorf("%w: user %s not found", booking.ErrNotFound, id)
	}
	if errors.Is(err, booking.ErrInfrastructure) {
		return err
	}
	return s.infra("load user", err)
}

func (s *Service) infra(op string, err error) error {
	s.Logger.Error("USERS", fmt.Sprintf("%s: %v", op, err))
	return fmt.Errorf("%s: %w: %w", op, booking.ErrInfrastructure, err)
}
