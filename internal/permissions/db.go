package permissions

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"ms-fulfillment/internal/errs"
	"ms-fulfillment/internal/models"
)

// BunStore reads actors and roles from the shared bun connection.
type BunStore struct {
	Bun *bun.DB
}

func (s *BunStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.Bun.NewSelect().
		Model(&user).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("user", userID)
		}
		return nil, err
	}
	return &user, nil
}

func (s *BunStore) GetRole(ctx context.Context, roleID string) (*models.Role, error) {
	var role models.Role
	err := s.Bun.NewSelect().
		Model(&role).
		Where("role_id = ?", roleID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("role", roleID)
		}
		return nil, err
	}
	return &role, nil
}
