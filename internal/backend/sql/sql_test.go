package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphc/internal/ir"
	"github.com/roach88/graphc/internal/querysql"
	"github.com/roach88/graphc/internal/testutil"
)

func animals() Schema {
	return Schema{
		Tables: map[string]string{"Animal": "animal", "FeedingEvent": "feeding_event"},
		Joins: map[string]map[string]JoinDescriptor{
			"Animal": {
				"out_Animal_ParentOf": {FromColumn: "uuid", ToColumn: "parent"},
				"out_Animal_FedAt":    {FromColumn: "uuid", ToColumn: "animal"},
			},
		},
	}
}

func TestCompile(t *testing.T) {
	testCases := []struct {
		name    string
		query   func(testing.TB) testutil.Query
		dialect querysql.Dialect
		want    string
		args    []querysql.Arg
	}{
		{
			name:    "simple output",
			query:   testutil.SimpleOutput,
			dialect: querysql.SQLite,
			want:    `SELECT "Animal___1"."name" AS "animal_name" FROM "animal" AS "Animal___1"`,
		},
		{
			name:    "traverse with filter",
			query:   testutil.TraverseWithFilter,
			dialect: querysql.Postgres,
			want: `SELECT "Animal__out_Animal_ParentOf___1"."name" AS "child_name", "Animal___1"."name" AS "parent_name" ` +
				`FROM "animal" AS "Animal___1" ` +
				`JOIN "animal" AS "Animal__out_Animal_ParentOf___1" ON ("Animal___1"."uuid" = "Animal__out_Animal_ParentOf___1"."parent") ` +
				`WHERE ("Animal___1"."name" = $1)`,
			args: []querysql.Arg{{Name: "wanted"}},
		},
		{
			name:    "filtered optional",
			query:   testutil.FilteredOptional,
			dialect: querysql.SQLite,
			want: `SELECT "Animal__out_Animal_ParentOf___1"."name" AS "child_name", "Animal___1"."name" AS "name" ` +
				`FROM "animal" AS "Animal___1" ` +
				`LEFT JOIN "animal" AS "Animal__out_Animal_ParentOf___1" ON ("Animal___1"."uuid" = "Animal__out_Animal_ParentOf___1"."parent") ` +
				`WHERE (("Animal__out_Animal_ParentOf___1"."parent" IS NULL) OR ("Animal__out_Animal_ParentOf___1"."name" = ?))`,
			args: []querysql.Arg{{Name: "child_name"}},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q := tc.query(t)
			got, err := Compile(q.Blocks, q.Meta, animals(), tc.dialect, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.SQL)
			assert.Equal(t, tc.args, got.Args)
		})
	}
}

func TestLowerReportsPortabilityWarnings(t *testing.T) {
	q := testutil.FilteredOptional(t)
	got, err := Lower(q.Blocks, q.Meta, animals(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Outer join to Animal__out_Animal_ParentOf___1 - rows without a match are NULL-filled",
		"Disjunction of 2 predicates",
		"NULL check on Animal__out_Animal_ParentOf___1.parent",
	}, got.Warnings)
}

func TestLowerComplexOptionalUsesLeftJoins(t *testing.T) {
	q := testutil.ComplexOptional(t)
	got, err := Lower(q.Blocks, q.Meta, animals(), nil)
	require.NoError(t, err)
	require.Len(t, got.Select.Joins, 2)
	assert.Equal(t, "feeding_event", got.Select.Joins[1].Table.Name)
	assert.Len(t, got.Select.Columns, 3)
}

func TestLowerRejectsUnsupportedFeatures(t *testing.T) {
	testCases := []struct {
		name  string
		query func(testing.TB) testutil.Query
	}{
		{name: "recursion", query: testutil.Recursion},
		{name: "fold", query: testutil.FoldedOutput},
		{name: "coercion", query: testutil.Coercion},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q := tc.query(t)
			_, err := Lower(q.Blocks, q.Meta, animals(), nil)
			require.Error(t, err)
			assert.True(t, ir.IsNotImplemented(err), "got %v", err)
		})
	}
}

func TestLowerReportsSchemaGaps(t *testing.T) {
	q := testutil.TraverseWithFilter(t)

	_, err := Lower(q.Blocks, q.Meta, Schema{}, nil)
	require.Error(t, err)
	assert.True(t, ir.IsCompilationError(err))

	_, err = Lower(q.Blocks, q.Meta, Schema{Tables: map[string]string{"Animal": "animal"}}, nil)
	require.Error(t, err)
	assert.True(t, ir.IsCompilationError(err))
}

func TestPredicate(t *testing.T) {
	name := testutil.Local("name", "String")
	testCases := []struct {
		name string
		expr ir.Expression
		sql  string
	}{
		{
			name: "in collection",
			expr: testutil.Bin(ir.OpContains, testutil.Var(t, "$names", "[String]"), name),
			sql:  `("t"."name" IN (SELECT value FROM json_each(?)))`,
		},
		{
			name: "null check",
			expr: testutil.Bin(ir.OpNe, name, ir.NullLiteral),
			sql:  `("t"."name" IS NOT NULL)`,
		},
		{
			name: "disjunction",
			expr: testutil.Bin(ir.OpOr,
				testutil.Bin(ir.OpLt, testutil.Local("age", "Int"), ir.Literal{Value: int64(3)}),
				testutil.Bin(ir.OpGe, testutil.Local("age", "Int"), testutil.Var(t, "$old", "Int"))),
			sql: `(("t"."age" < ?) OR ("t"."age" >= ?))`,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pred, err := predicate(tc.expr, "t")
			require.NoError(t, err)
			q := testutil.SimpleOutput(t)
			lowered, err := Lower(q.Blocks, q.Meta, animals(), nil)
			require.NoError(t, err)
			lowered.Select.From.Alias = "t"
			lowered.Select.Columns[0].Ref.Table = "t"
			lowered.Select.Where = pred
			sql, _, err := querysql.NewSQLCompiler(querysql.SQLite).Compile(lowered.Select)
			require.NoError(t, err)
			assert.Equal(t, `SELECT "t"."name" AS "animal_name" FROM "animal" AS "t" WHERE `+tc.sql, sql)
		})
	}

	_, err := predicate(testutil.Bin(ir.OpHasSubstring, name, testutil.Var(t, "$p", "String")), "t")
	assert.True(t, ir.IsNotImplemented(err))
}

func TestSchemaDigest(t *testing.T) {
	a, err := animals().Digest()
	require.NoError(t, err)
	b, err := animals().Digest()
	require.NoError(t, err)
	assert.Equal(t, a, b)

	changed := animals()
	changed.Joins["Animal"]["out_Animal_ParentOf"] = JoinDescriptor{FromColumn: "uuid", ToColumn: "child"}
	c, err := changed.Digest()
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
