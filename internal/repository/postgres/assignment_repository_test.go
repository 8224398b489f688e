package postgres

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrderClause(t *testing.T) {
	tests := []struct {
		sort string
		want string
	}{
		{"", "id ASC"},
		{"id", "id ASC"},
		{"programId", "program_id ASC"},
		{"programId,desc", "program_id DESC"},
		{"facilityTypeId,DESC", "facility_type_id DESC"},
		{"nodeId,asc", "node_id ASC"},
		// Unknown keys must not reach the query text.
		{"occurred_date; DROP TABLE nodes", "id ASC"},
		{"stockOnHand", "id ASC"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, orderClause(tt.sort), "sort %q", tt.sort)
	}
}
