package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stocklane.io/stocklane/internal/domain"
	"stocklane.io/stocklane/internal/repository"
)

// AssignmentRepository persists authorization edges. Uniqueness of the
// (program, facility type, node, direction) key is enforced by the store's
// unique index; concurrent duplicate creates surface as ErrDuplicate.
type AssignmentRepository struct {
	pool *pgxpool.Pool
}

var _ repository.AssignmentRepository = (*AssignmentRepository)(nil)

const assignmentSelect = `SELECT id, program_id, facility_type_id, node_id, direction FROM valid_assignments`

func (r *AssignmentRepository) Create(ctx context.Context, a domain.Assignment) (domain.Assignment, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO valid_assignments (id, program_id, facility_type_id, node_id, direction)
		 VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.ProgramID, a.FacilityTypeID, a.NodeID, string(a.Direction),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Assignment{}, repository.ErrDuplicate
		}
		return domain.Assignment{}, fmt.Errorf("insert assignment: %w", err)
	}
	return a, nil
}

func (r *AssignmentRepository) FindByKey(ctx context.Context, programID, facilityTypeID, nodeID uuid.UUID, dir domain.Direction) (domain.Assignment, error) {
	row := r.pool.QueryRow(ctx,
		assignmentSelect+` WHERE program_id = $1 AND facility_type_id = $2 AND node_id = $3 AND direction = $4`,
		programID, facilityTypeID, nodeID, string(dir),
	)
	return scanAssignment(row)
}

func (r *AssignmentRepository) FindByID(ctx context.Context, id uuid.UUID, dir domain.Direction) (domain.Assignment, error) {
	row := r.pool.QueryRow(ctx,
		assignmentSelect+` WHERE id = $1 AND direction = $2`,
		id, string(dir),
	)
	return scanAssignment(row)
}

func (r *AssignmentRepository) FindPage(ctx context.Context, dir domain.Direction, filter repository.AssignmentFilter, req domain.PageRequest) (domain.Page[domain.Assignment], error) {
	where := []string{"direction = $1"}
	args := []any{string(dir)}
	if filter.ProgramID != nil {
		args = append(args, *filter.ProgramID)
		where = append(where, fmt.Sprintf("program_id = $%d", len(args)))
	}
	if filter.FacilityTypeID != nil {
		args = append(args, *filter.FacilityTypeID)
		where = append(where, fmt.Sprintf("facility_type_id = $%d", len(args)))
	}
	cond := " WHERE " + strings.Join(where, " AND ")

	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM valid_assignments`+cond, args...,
	).Scan(&total); err != nil {
		return domain.Page[domain.Assignment]{}, fmt.Errorf("count assignments: %w", err)
	}

	args = append(args, req.Limit(defaultPageSize), req.Offset())
	query := fmt.Sprintf("%s%s ORDER BY %s LIMIT $%d OFFSET $%d",
		assignmentSelect, cond, orderClause(req.Sort), len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return domain.Page[domain.Assignment]{}, fmt.Errorf("select assignments: %w", err)
	}
	defer rows.Close()

	var content []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return domain.Page[domain.Assignment]{}, err
		}
		content = append(content, a)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.Assignment]{}, fmt.Errorf("iterate assignments: %w", err)
	}
	return domain.NewPage(content, req, total), nil
}

func (r *AssignmentRepository) DeleteByID(ctx context.Context, id uuid.UUID, dir domain.Direction) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM valid_assignments WHERE id = $1 AND direction = $2`,
		id, string(dir),
	)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

const defaultPageSize = 50

// orderClause maps the opaque sort key onto a safe ORDER BY; unknown keys
// fall back to id.
func orderClause(sort string) string {
	col, desc := "id", false
	if s := strings.TrimSpace(sort); s != "" {
		parts := strings.SplitN(s, ",", 2)
		switch parts[0] {
		case "id", "program_id", "facility_type_id", "node_id":
			col = parts[0]
		case "programId":
			col = "program_id"
		case "facilityTypeId":
			col = "facility_type_id"
		case "nodeId":
			col = "node_id"
		}
		desc = len(parts) == 2 && strings.EqualFold(strings.TrimSpace(parts[1]), "desc")
	}
	if desc {
		return col + " DESC"
	}
	return col + " ASC"
}

func scanAssignment(row pgx.Row) (domain.Assignment, error) {
	var (
		a      domain.Assignment
		dirStr string
	)
	err := row.Scan(&a.ID, &a.ProgramID, &a.FacilityTypeID, &a.NodeID, &dirStr)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Assignment{}, repository.ErrNotFound
	}
	if err != nil {
		return domain.Assignment{}, fmt.Errorf("scan assignment: %w", err)
	}
	a.Direction = domain.Direction(dirStr)
	return a, nil
}
