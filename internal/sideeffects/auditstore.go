package sideeffects

import (
	"context"

	"github.com/uptrace/bun"

	"ms-fulfillment/internal/models"
)

// BunAuditStore persists audit entries through the shared bun connection.
type BunAuditStore struct {
	Bun *bun.DB
}

func (s *BunAuditStore) InsertAuditLog(ctx context.Context, entry *models.AuditLog) error {
	_, err := s.Bun.NewInsert().Model(entry).Exec(ctx)
	return err
}
