package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"stocklane.io/stocklane/internal/domain"
	"stocklane.io/stocklane/internal/repository"
)

// AssignmentRepository persists authorization edges. The unique index on
// (program_id, facility_type_id, node_id, direction) enforces the one-edge
// invariant at the store level, so concurrent creates cannot both win.
type AssignmentRepository struct {
	db *sql.DB
}

var _ repository.AssignmentRepository = (*AssignmentRepository)(nil)

const assignmentSelect = `SELECT id, program_id, facility_type_id, node_id, direction FROM valid_assignments`

func (r *AssignmentRepository) Create(ctx context.Context, a domain.Assignment) (domain.Assignment, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO valid_assignments (id, program_id, facility_type_id, node_id, direction)
		 VALUES (?, ?, ?, ?, ?)`,
		a.ID.String(), a.ProgramID.String(), a.FacilityTypeID.String(), a.NodeID.String(), string(a.Direction),
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
	row := r.db.QueryRowContext(ctx,
		assignmentSelect+` WHERE program_id = ? AND facility_type_id = ? AND node_id = ? AND direction = ?`,
		programID.String(), facilityTypeID.String(), nodeID.String(), string(dir),
	)
	return scanAssignmentRow(row)
}

func (r *AssignmentRepository) FindByID(ctx context.Context, id uuid.UUID, dir domain.Direction) (domain.Assignment, error) {
	row := r.db.QueryRowContext(ctx,
		assignmentSelect+` WHERE id = ? AND direction = ?`,
		id.String(), string(dir),
	)
	return scanAssignmentRow(row)
}

func (r *AssignmentRepository) FindPage(ctx context.Context, dir domain.Direction, filter repository.AssignmentFilter, req domain.PageRequest) (domain.Page[domain.Assignment], error) {
	where := []string{"direction = ?"}
	args := []any{string(dir)}
	if filter.ProgramID != nil {
		where = append(where, "program_id = ?")
		args = append(args, filter.ProgramID.String())
	}
	if filter.FacilityTypeID != nil {
		where = append(where, "facility_type_id = ?")
		args = append(args, filter.FacilityTypeID.String())
	}
	cond := " WHERE " + strings.Join(where, " AND ")

	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM valid_assignments`+cond, args...,
	).Scan(&total); err != nil {
		return domain.Page[domain.Assignment]{}, fmt.Errorf("count assignments: %w", err)
	}

	query := assignmentSelect + cond + " ORDER BY " + assignmentOrderClause(req.Sort) + " LIMIT ? OFFSET ?"
	args = append(args, req.Limit(defaultPageSize), req.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
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
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM valid_assignments WHERE id = ? AND direction = ?`,
		id.String(), string(dir),
	)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete assignment rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

const defaultPageSize = 50

// assignmentOrderClause maps the opaque sort key onto a safe ORDER BY.
// Unknown keys fall back to id so a bad sort never fails the query.
func assignmentOrderClause(sort string) string {
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (domain.Assignment, error) {
	var idStr, programStr, ftStr, nodeStr, dirStr string
	if err := row.Scan(&idStr, &programStr, &ftStr, &nodeStr, &dirStr); err != nil {
		return domain.Assignment{}, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return domain.Assignment{}, fmt.Errorf("parse assignment id: %w", err)
	}
	programID, err := uuid.Parse(programStr)
	if err != nil {
		return domain.Assignment{}, fmt.Errorf("parse program id: %w", err)
	}
	ftID, err := uuid.Parse(ftStr)
	if err != nil {
		return domain.Assignment{}, fmt.Errorf("parse facility type id: %w", err)
	}
	nodeID, err := uuid.Parse(nodeStr)
	if err != nil {
		return domain.Assignment{}, fmt.Errorf("parse node id: %w", err)
	}
	return domain.Assignment{
		ID:             id,
		ProgramID:      programID,
		FacilityTypeID: ftID,
		NodeID:         nodeID,
		Direction:      domain.Direction(dirStr),
	}, nil
}

func scanAssignmentRow(row *sql.Row) (domain.Assignment, error) {
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Assignment{}, repository.ErrNotFound
	}
	if err != nil {
		return domain.Assignment{}, fmt.Errorf("select assignment: %w", err)
	}
	return a, nil
}
