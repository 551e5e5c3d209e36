package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	col := ColumnRef{Table: "a", Column: "name"}
	base := Select{
		From:    Table{Name: "animal", Alias: "a"},
		Columns: []Column{{Ref: col, As: "name"}},
	}

	testCases := []struct {
		name     string
		query    Query
		portable bool
		warnings []string
	}{
		{
			name:     "plain select",
			query:    base,
			portable: true,
			warnings: []string{},
		},
		{
			name: "inner join with equality",
			query: Select{
				From: base.From,
				Joins: []Join{{
					Kind:  InnerJoin,
					Table: Table{Name: "animal", Alias: "c"},
					On:    Compare{Op: OpEq, Left: ColumnRef{Table: "a", Column: "id"}, Right: ColumnRef{Table: "c", Column: "parent"}},
				}},
				Where:   Compare{Op: OpEq, Left: col, Right: Param{Name: "wanted"}},
				Columns: base.Columns,
			},
			portable: true,
			warnings: []string{},
		},
		{
			name: "left join",
			query: Select{
				From: base.From,
				Joins: []Join{{
					Kind:  LeftJoin,
					Table: Table{Name: "animal", Alias: "c"},
					On:    Compare{Op: OpEq, Left: ColumnRef{Table: "a", Column: "id"}, Right: ColumnRef{Table: "c", Column: "parent"}},
				}},
				Columns: base.Columns,
			},
			warnings: []string{"Outer join to c - rows without a match are NULL-filled"},
		},
		{
			name: "disjunction with null check",
			query: Select{
				From:    base.From,
				Where:   Or{Predicates: []Predicate{IsNull{Operand: col}, Compare{Op: OpEq, Left: col, Right: Value{Value: "x"}}}},
				Columns: base.Columns,
			},
			warnings: []string{"Disjunction of 2 predicates", "NULL check on a.name"},
		},
		{
			name:     "select star",
			query:    Select{From: base.From},
			warnings: []string{"Empty column list (SELECT *) - explicit columns are required"},
		},
		{
			name:     "nil query",
			query:    nil,
			warnings: []string{"nil query"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Validate(tc.query)
			assert.Equal(t, tc.portable, got.IsPortable)
			assert.Equal(t, tc.warnings, got.Warnings)
		})
	}
}
