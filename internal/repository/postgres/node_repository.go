package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stocklane.io/stocklane/internal/domain"
	"stocklane.io/stocklane/internal/repository"
)

// NodeRepository persists movement endpoint identities.
type NodeRepository struct {
	pool *pgxpool.Pool
}

var _ repository.NodeRepository = (*NodeRepository)(nil)

func (r *NodeRepository) Create(ctx context.Context, node domain.Node) (domain.Node, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO nodes (id, reference_id, is_refdata_facility) VALUES ($1, $2, $3)`,
		node.ID, node.ReferenceID, node.IsRefDataFacility,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Node{}, repository.ErrDuplicate
		}
		return domain.Node{}, fmt.Errorf("insert node: %w", err)
	}
	return node, nil
}

func (r *NodeRepository) FindByID(ctx context.Context, id uuid.UUID) (domain.Node, error) {
	var node domain.Node
	err := r.pool.QueryRow(ctx,
		`SELECT id, reference_id, is_refdata_facility FROM nodes WHERE id = $1`, id,
	).Scan(&node.ID, &node.ReferenceID, &node.IsRefDataFacility)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Node{}, repository.ErrNotFound
	}
	if err != nil {
		return domain.Node{}, fmt.Errorf("select node: %w", err)
	}
	return node, nil
}

func (r *NodeRepository) FindByReferenceID(ctx context.Context, referenceID uuid.UUID) (domain.Node, error) {
	var node domain.Node
	err := r.pool.QueryRow(ctx,
		`SELECT id, reference_id, is_refdata_facility FROM nodes WHERE reference_id = $1`, referenceID,
	).Scan(&node.ID, &node.ReferenceID, &node.IsRefDataFacility)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Node{}, repository.ErrNotFound
	}
	if err != nil {
		return domain.Node{}, fmt.Errorf("select node by reference: %w", err)
	}
	return node, nil
}
