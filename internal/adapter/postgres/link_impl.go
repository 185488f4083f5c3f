package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/harvester/internal/entity"
)

// LinkRepoImpl writes the link graph into the central store.
type LinkRepoImpl struct {
	db *pgxpool.Pool
}

func NewLinkRepo(db *pgxpool.Pool) *LinkRepoImpl {
	return &LinkRepoImpl{db: db}
}

func (r *LinkRepoImpl) AddEdge(ctx context.Context, edge entity.LinkEdge) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO link_graph (source_key, target_key) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		edge.SourceKey, edge.TargetKey)
	if err != nil {
		return false, fmt.Errorf("insert edge: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
