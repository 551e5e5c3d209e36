package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphc/internal/queryir"
)

func parentChild(kind queryir.JoinKind) queryir.Select {
	return queryir.Select{
		From: queryir.Table{Name: "animal", Alias: "a"},
		Joins: []queryir.Join{{
			Kind:  kind,
			Table: queryir.Table{Name: "animal", Alias: "c"},
			On: queryir.Compare{
				Op:    queryir.OpEq,
				Left:  queryir.ColumnRef{Table: "a", Column: "uuid"},
				Right: queryir.ColumnRef{Table: "c", Column: "parent"},
			},
		}},
		Where: queryir.And{Predicates: []queryir.Predicate{
			queryir.Compare{Op: queryir.OpEq, Left: queryir.ColumnRef{Table: "a", Column: "name"}, Right: queryir.Param{Name: "wanted"}},
			queryir.Compare{Op: queryir.OpNe, Left: queryir.ColumnRef{Table: "c", Column: "name"}, Right: queryir.Param{Name: "wanted"}},
		}},
		Columns: []queryir.Column{
			{Ref: queryir.ColumnRef{Table: "c", Column: "name"}, As: "child_name"},
			{Ref: queryir.ColumnRef{Table: "a", Column: "name"}, As: "name"},
		},
	}
}

func TestCompile(t *testing.T) {
	testCases := []struct {
		name    string
		dialect Dialect
		query   queryir.Query
		want    string
		args    []Arg
	}{
		{
			name:    "sqlite inner join",
			dialect: SQLite,
			query:   parentChild(queryir.InnerJoin),
			want: `SELECT "c"."name" AS "child_name", "a"."name" AS "name" FROM "animal" AS "a" ` +
				`JOIN "animal" AS "c" ON ("a"."uuid" = "c"."parent") ` +
				`WHERE (("a"."name" = ?) AND ("c"."name" <> ?))`,
			args: []Arg{{Name: "wanted"}, {Name: "wanted"}},
		},
		{
			name:    "postgres reuses parameter numbers",
			dialect: Postgres,
			query:   parentChild(queryir.LeftJoin),
			want: `SELECT "c"."name" AS "child_name", "a"."name" AS "name" FROM "animal" AS "a" ` +
				`LEFT JOIN "animal" AS "c" ON ("a"."uuid" = "c"."parent") ` +
				`WHERE (("a"."name" = $1) AND ("c"."name" <> $1))`,
			args: []Arg{{Name: "wanted"}},
		},
		{
			name:    "literal list membership",
			dialect: Postgres,
			query: queryir.Select{
				From: queryir.Table{Name: "animal", Alias: "a"},
				Where: queryir.In{
					Needle:   queryir.ColumnRef{Table: "a", Column: "color"},
					Haystack: queryir.Value{Value: []string{"red", "blue"}},
				},
				Columns: []queryir.Column{{Ref: queryir.ColumnRef{Table: "a", Column: "name"}, As: "name"}},
			},
			want: `SELECT "a"."name" AS "name" FROM "animal" AS "a" WHERE ("a"."color" IN ($1, $2))`,
			args: []Arg{{Value: "red"}, {Value: "blue"}},
		},
		{
			name:    "sqlite list parameter",
			dialect: SQLite,
			query: &queryir.Select{
				From: queryir.Table{Name: "animal", Alias: "a"},
				Where: queryir.Or{Predicates: []queryir.Predicate{
					queryir.In{Needle: queryir.ColumnRef{Table: "a", Column: "color"}, Haystack: queryir.Param{Name: "colors"}},
					queryir.IsNull{Operand: queryir.ColumnRef{Table: "a", Column: "color"}},
				}},
				Columns: []queryir.Column{{Ref: queryir.ColumnRef{Table: "a", Column: "name"}, As: "name"}},
			},
			want: `SELECT "a"."name" AS "name" FROM "animal" AS "a" ` +
				`WHERE (("a"."color" IN (SELECT value FROM json_each(?))) OR ("a"."color" IS NULL))`,
			args: []Arg{{Name: "colors"}},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sql, args, err := NewSQLCompiler(tc.dialect).Compile(tc.query)
			require.NoError(t, err)
			assert.Equal(t, tc.want, sql)
			assert.Equal(t, tc.args, args)
		})
	}
}

func TestCompileNeverInterpolatesValues(t *testing.T) {
	q := queryir.Select{
		From:    queryir.Table{Name: "animal", Alias: "a"},
		Where:   queryir.Compare{Op: queryir.OpEq, Left: queryir.ColumnRef{Table: "a", Column: "name"}, Right: queryir.Value{Value: "Robert'); DROP TABLE animal;--"}},
		Columns: []queryir.Column{{Ref: queryir.ColumnRef{Table: "a", Column: "name"}, As: "name"}},
	}
	sql, args, err := NewSQLCompiler(SQLite).Compile(q)
	require.NoError(t, err)
	assert.NotContains(t, sql, "DROP")
	assert.Len(t, args, 1)
}

func TestCompileRejectsUnsafeIdentifiers(t *testing.T) {
	testCases := []struct {
		name  string
		query queryir.Select
	}{
		{
			name: "table",
			query: queryir.Select{
				From:    queryir.Table{Name: `animal"; --`, Alias: "a"},
				Columns: []queryir.Column{{Ref: queryir.ColumnRef{Table: "a", Column: "name"}, As: "name"}},
			},
		},
		{
			name: "column alias",
			query: queryir.Select{
				From:    queryir.Table{Name: "animal", Alias: "a"},
				Columns: []queryir.Column{{Ref: queryir.ColumnRef{Table: "a", Column: "name"}, As: "two words"}},
			},
		},
		{
			name:  "no columns",
			query: queryir.Select{From: queryir.Table{Name: "animal", Alias: "a"}},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := NewSQLCompiler(SQLite).Compile(tc.query)
			require.Error(t, err)
		})
	}
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("")
	require.NoError(t, err)
	assert.Equal(t, SQLite, d)

	d, err = ParseDialect("postgres")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)

	_, err = ParseDialect("oracle")
	require.Error(t, err)
}

func TestVerifyPostgres(t *testing.T) {
	sql, _, err := NewSQLCompiler(Postgres).Compile(parentChild(queryir.LeftJoin))
	require.NoError(t, err)
	require.NoError(t, VerifyPostgres(sql))

	require.Error(t, VerifyPostgres("SELEC 1 FORM animal"))
}
