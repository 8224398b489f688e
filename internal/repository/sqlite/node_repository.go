package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"stocklane.io/stocklane/internal/domain"
	"stocklane.io/stocklane/internal/repository"
)

// NodeRepository persists movement endpoint identities.
type NodeRepository struct {
	db *sql.DB
}

var _ repository.NodeRepository = (*NodeRepository)(nil)

func (r *NodeRepository) Create(ctx context.Context, node domain.Node) (domain.Node, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO nodes (id, reference_id, is_refdata_facility) VALUES (?, ?, ?)`,
		node.ID.String(), node.ReferenceID.String(), boolToInt(node.IsRefDataFacility),
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
	row := r.db.QueryRowContext(ctx,
		`SELECT id, reference_id, is_refdata_facility FROM nodes WHERE id = ?`,
		id.String(),
	)
	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Node{}, repository.ErrNotFound
	}
	if err != nil {
		return domain.Node{}, fmt.Errorf("select node: %w", err)
	}
	return node, nil
}

func (r *NodeRepository) FindByReferenceID(ctx context.Context, referenceID uuid.UUID) (domain.Node, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, reference_id, is_refdata_facility FROM nodes WHERE reference_id = ?`,
		referenceID.String(),
	)
	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Node{}, repository.ErrNotFound
	}
	if err != nil {
		return domain.Node{}, fmt.Errorf("select node by reference: %w", err)
	}
	return node, nil
}

func scanNode(row *sql.Row) (domain.Node, error) {
	var (
		idStr, refStr string
		isRefData     int
	)
	if err := row.Scan(&idStr, &refStr, &isRefData); err != nil {
		return domain.Node{}, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return domain.Node{}, fmt.Errorf("parse node id: %w", err)
	}
	ref, err := uuid.Parse(refStr)
	if err != nil {
		return domain.Node{}, fmt.Errorf("parse reference id: %w", err)
	}
	return domain.Node{ID: id, ReferenceID: ref, IsRefDataFacility: isRefData != 0}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
