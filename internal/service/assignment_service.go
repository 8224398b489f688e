// Package service provides business logic for the stock ledger and the
// assignment graph. Services depend on repository interfaces, never on a
// concrete store, so the same logic runs against postgres and sqlite.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stocklane.io/stocklane/internal/domain"
	apperrors "stocklane.io/stocklane/internal/pkg/errors"
	"stocklane.io/stocklane/internal/pkg/logger"
	"stocklane.io/stocklane/internal/pkg/metrics"
	"stocklane.io/stocklane/internal/repository"
)

// AssignmentService manages the authorization edges of the assignment graph.
// Each edge says "this node is a valid source (or destination) for stock
// movements under this program and facility type".
type AssignmentService struct {
	assignments repository.AssignmentRepository
	nodes       repository.NodeRepository
}

// NewAssignmentService creates a new AssignmentService.
func NewAssignmentService(assignments repository.AssignmentRepository, nodes repository.NodeRepository) *AssignmentService {
	return &AssignmentService{assignments: assignments, nodes: nodes}
}

// FindPage returns one page of assignments for a direction, optionally
// narrowed by program and facility type. Either filter field may be nil to
// match any value.
func (s *AssignmentService) FindPage(ctx context.Context, direction domain.Direction, filter repository.AssignmentFilter, req domain.PageRequest) (domain.Page[domain.Assignment], error) {
	if !direction.Valid() {
		return domain.Page[domain.Assignment]{}, apperrors.BadRequest(apperrors.CodeValidationFailed, fmt.Sprintf("invalid direction %q", direction))
	}

	page, err := s.assignments.FindPage(ctx, direction, filter, req)
	if err != nil {
		return domain.Page[domain.Assignment]{}, fmt.Errorf("find assignments: %w", err)
	}
	return page, nil
}

// Assign creates a new authorization edge. The assignment must not carry a
// caller-provided ID, and the referenced node must already exist. Creating an
// edge whose (program, facilityType, node, direction) key already exists
// fails with DUPLICATE_ASSIGNMENT; the store's unique index enforces this
// even under concurrent calls.
func (s *AssignmentService) Assign(ctx context.Context, a domain.Assignment) (domain.Assignment, error) {
	result := "success"
	defer func() { metrics.Get().AssignTotal.WithLabelValues(string(a.Direction), result).Inc() }()

	if !a.Direction.Valid() {
		result = "invalid"
		return domain.Assignment{}, apperrors.BadRequest(apperrors.CodeValidationFailed, fmt.Sprintf("invalid direction %q", a.Direction))
	}
	if a.ID != uuid.Nil {
		result = "invalid"
		return domain.Assignment{}, apperrors.ErrIDProvidedf(a.ID.String())
	}
	if a.ProgramID == uuid.Nil || a.FacilityTypeID == uuid.Nil || a.NodeID == uuid.Nil {
		result = "invalid"
		return domain.Assignment{}, apperrors.BadRequest(apperrors.CodeValidationFailed, "programId, facilityTypeId and nodeId are required")
	}

	if _, err := s.nodes.FindByID(ctx, a.NodeID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			result = "node_not_found"
			return domain.Assignment{}, apperrors.ErrNodeNotFoundf(a.NodeID.String())
		}
		result = "error"
		return domain.Assignment{}, fmt.Errorf("resolve node %s: %w", a.NodeID, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		result = "error"
		return domain.Assignment{}, fmt.Errorf("generate assignment id: %w", err)
	}
	a.ID = id

	if _, err := s.assignments.Create(ctx, a); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			result = "duplicate"
			return domain.Assignment{}, apperrors.ErrDuplicateAssignmentf(string(a.Direction))
		}
		result = "error"
		return domain.Assignment{}, fmt.Errorf("create assignment: %w", err)
	}

	logger.Info("assignment created",
		zap.String("id", a.ID.String()),
		zap.String("direction", string(a.Direction)),
		zap.String("programId", a.ProgramID.String()),
		zap.String("nodeId", a.NodeID.String()))
	return a, nil
}

// FindOne looks up the edge for an exact (program, facilityType, node) key in
// one direction. This is the authorization check used before applying a stock
// movement: a missing edge means the node is not a valid source/destination.
func (s *AssignmentService) FindOne(ctx context.Context, programID, facilityTypeID, nodeID uuid.UUID, direction domain.Direction) (domain.Assignment, error) {
	a, err := s.assignments.FindByKey(ctx, programID, facilityTypeID, nodeID, direction)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Assignment{}, apperrors.ErrAssignmentNotFoundf(string(direction))
		}
		return domain.Assignment{}, fmt.Errorf("find assignment: %w", err)
	}
	return a, nil
}

// FindByID returns a single assignment by its ID within one direction.
func (s *AssignmentService) FindByID(ctx context.Context, id uuid.UUID, direction domain.Direction) (domain.Assignment, error) {
	a, err := s.assignments.FindByID(ctx, id, direction)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Assignment{}, apperrors.ErrAssignmentNotFoundf(string(direction))
		}
		return domain.Assignment{}, fmt.Errorf("find assignment %s: %w", id, err)
	}
	return a, nil
}

// DeleteByID removes an authorization edge. Historical ledger entries are not
// touched; deleting an edge only blocks future movements.
func (s *AssignmentService) DeleteByID(ctx context.Context, id uuid.UUID, direction domain.Direction) error {
	if err := s.assignments.DeleteByID(ctx, id, direction); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ErrAssignmentNotFoundf(string(direction))
		}
		return fmt.Errorf("delete assignment %s: %w", id, err)
	}
	logger.Info("assignment deleted", zap.String("id", id.String()), zap.String("direction", string(direction)))
	return nil
}

// ResolveNode returns the graph node for an ID.
func (s *AssignmentService) ResolveNode(ctx context.Context, nodeID uuid.UUID) (domain.Node, error) {
	n, err := s.nodes.FindByID(ctx, nodeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Node{}, apperrors.ErrNodeNotFoundf(nodeID.String())
		}
		return domain.Node{}, fmt.Errorf("resolve node %s: %w", nodeID, err)
	}
	return n, nil
}

// RegisterNode stores a new graph node. Reference-data facilities and ad-hoc
// organizations both live in the same table; IsRefDataFacility tells them
// apart.
func (s *AssignmentService) RegisterNode(ctx context.Context, referenceID uuid.UUID, isRefDataFacility bool) (domain.Node, error) {
	if referenceID == uuid.Nil {
		return domain.Node{}, apperrors.BadRequest(apperrors.CodeValidationFailed, "referenceId is required")
	}
	id, err := uuid.NewV7()
	if err != nil {
		return domain.Node{}, fmt.Errorf("generate node id: %w", err)
	}
	n := domain.Node{ID: id, ReferenceID: referenceID, IsRefDataFacility: isRefDataFacility}
	if _, err := s.nodes.Create(ctx, n); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			existing, ferr := s.nodes.FindByReferenceID(ctx, referenceID)
			if ferr != nil {
				return domain.Node{}, fmt.Errorf("find node by reference %s: %w", referenceID, ferr)
			}
			return existing, nil
		}
		return domain.Node{}, fmt.Errorf("create node: %w", err)
	}
	return n, nil
}
