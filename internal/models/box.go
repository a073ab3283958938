package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Box is a physical pickup location holding per-product stock.
type Box struct {
	bun.BaseModel `bun:"table:boxes"`

	BoxID string `bun:"box_id,pk" json:"box_id"`
	Name  string `bun:"name" json:"name"`

	// Stock maps product id to a non-negative count. Adjustments are
	// additive deltas applied under the optimistic version check below,
	// never absolute overwrites.
	Stock   map[string]int `bun:"stock,type:jsonb" json:"stock"`
	Version int64          `bun:"version" json:"version"`

	IsActive  bool      `bun:"is_active" json:"is_active"`
	CreatedAt time.Time `bun:"created_at" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at" json:"updated_at"`
}
