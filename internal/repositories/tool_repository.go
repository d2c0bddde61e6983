package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"toolswap-chat/internal/models"
)

var ErrToolNotFound = errors.New("tool not found")

// ToolRepository resolves tool display data; the listing subsystem owns the
// table.
type ToolRepository interface {
	GetTool(ctx context.Context, toolID int) (models.Tool, error)
	BulkTools(ctx context.Context, ids []int) ([]models.Tool, error)
}

// ToolRepo is a sqlx implementation of ToolRepository.
type ToolRepo struct {
	db *sqlx.DB
}

// NewToolRepo constructs a ToolRepo.
func NewToolRepo(db *sqlx.DB) *ToolRepo {
	return &ToolRepo{db: db}
}

// GetTool fetches one tool.
func (r *ToolRepo) GetTool(ctx context.Context, toolID int) (models.Tool, error) {
	var tool models.Tool
	err := r.db.GetContext(ctx, &tool, `SELECT id, owner_id, title, available, created_at FROM tools WHERE id=$1`, toolID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Tool{}, ErrToolNotFound
	}
	return tool, err
}

// BulkTools fetches multiple tools in one query.
func (r *ToolRepo) BulkTools(ctx context.Context, ids []int) ([]models.Tool, error) {
	if len(ids) == 0 {
		return []models.Tool{}, nil
	}
	query, args, err := sqlx.In(`SELECT id, owner_id, title, available, created_at FROM tools WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var tools []models.Tool
	err = r.db.SelectContext(ctx, &tools, query, args...)
	return tools, err
}
