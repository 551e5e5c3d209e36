package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphc/internal/ir"
	"github.com/roach88/graphc/internal/testutil"
)

const animalsSDL = `
scalar Date

interface Entity {
  name: String
  uuid: ID
  out_Entity_Related: [Entity]
}

type Animal implements Entity {
  name: String
  uuid: ID
  birthday: Date
  net_worth: Int
  out_Entity_Related: [Entity]
  out_Animal_ParentOf: [Animal]
  in_Animal_ParentOf: [Animal]
  out_Animal_FedAt: [FeedingEvent]
}

type Species implements Entity {
  name: String
  uuid: ID
  out_Entity_Related: [Entity]
}

type FeedingEvent {
  name: String
  event_date: Date
}

union Union__Animal__Species = Animal | Species

type Query {
  Animal: [Animal]
}
`

func mustParse(t *testing.T) *Schema {
	t.Helper()
	s, err := Parse("animals.graphql", animalsSDL)
	require.NoError(t, err)
	return s
}

func TestFieldType(t *testing.T) {
	s := mustParse(t)
	testCases := []struct {
		typeName string
		field    string
		want     string
	}{
		{typeName: "Animal", field: "name", want: "String"},
		{typeName: "Animal", field: "birthday", want: "Date"},
		{typeName: "Animal", field: "out_Animal_ParentOf", want: "[Animal]"},
		{typeName: "Entity", field: "uuid", want: "ID"},
	}
	for _, tc := range testCases {
		t.Run(tc.typeName+"."+tc.field, func(t *testing.T) {
			got, err := s.FieldType(tc.typeName, tc.field)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.String())
		})
	}

	_, err := s.FieldType("Animal", "color")
	assert.True(t, ir.IsCompilationError(err))
	_, err = s.FieldType("Plant", "name")
	assert.True(t, ir.IsCompilationError(err))
}

func TestHasType(t *testing.T) {
	s := mustParse(t)
	assert.True(t, s.HasType("Animal"))
	assert.True(t, s.HasType("Entity"))
	assert.True(t, s.HasType("Union__Animal__Species"))
	assert.False(t, s.HasType("Date"))
	assert.False(t, s.HasType("String"))
	assert.False(t, s.HasType("Plant"))
}

func TestTypeEquivalenceHints(t *testing.T) {
	s := mustParse(t)
	assert.Equal(t, map[string][]string{
		"Entity":                 {"Animal", "Species"},
		"Union__Animal__Species": {"Animal", "Species"},
	}, s.TypeEquivalenceHints())
}

func TestVersion(t *testing.T) {
	a := mustParse(t)
	b, err := Parse("other-name.graphql", animalsSDL)
	require.NoError(t, err)
	assert.Equal(t, a.Version(), b.Version())
	assert.Len(t, a.Version(), 64)

	c, err := Parse("animals.graphql", animalsSDL+"\ntype Plant { name: String }\n")
	require.NoError(t, err)
	assert.NotEqual(t, a.Version(), c.Version())
}

func TestCheckMetadata(t *testing.T) {
	s := mustParse(t)

	q := testutil.ComplexOptional(t)
	require.NoError(t, s.CheckMetadata(q.Meta))

	l := testutil.StandardLocations(t)
	bad := testutil.Meta(t, testutil.LocationSpec{Loc: l.Animal, Type: "Plant"})
	err := s.CheckMetadata(bad)
	require.Error(t, err)
	assert.True(t, ir.IsCompilationError(err))
}

func TestCheckMetadataEdges(t *testing.T) {
	s := mustParse(t)
	l := testutil.StandardLocations(t)
	related := testutil.Fold(t, l.Animal, "out_Entity_Related")
	relatedFed := testutil.FoldSub(t, related, "out_Animal_FedAt")

	testCases := []struct {
		name  string
		specs []testutil.LocationSpec
		ok    bool
	}{
		{
			name: "declared edges",
			specs: []testutil.LocationSpec{
				{Loc: l.Animal, Type: "Animal"},
				{Loc: l.Child, Type: "Animal"},
				{Loc: l.Event, Type: "FeedingEvent"},
				{Loc: l.Children, Type: "Animal", InFold: true},
			},
			ok: true,
		},
		{
			name: "edge missing on parent type",
			specs: []testutil.LocationSpec{
				{Loc: l.Animal, Type: "Species"},
				{Loc: l.Child, Type: "Animal"},
			},
		},
		{
			name: "edge missing inside fold",
			specs: []testutil.LocationSpec{
				{Loc: l.Animal, Type: "Animal"},
				{Loc: related, Type: "Entity", InFold: true},
				{Loc: relatedFed, Type: "FeedingEvent", InFold: true},
			},
		},
		{
			name: "unregistered parent is skipped",
			specs: []testutil.LocationSpec{
				{Loc: l.Event, Type: "FeedingEvent"},
			},
			ok: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.CheckMetadata(testutil.Meta(t, tc.specs...))
			if tc.ok {
				require.NoError(t, err)
				return
			}
			var ce *ir.CompilationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, ir.CodeUnknownEdge, ce.Code)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.graphql")
	require.NoError(t, os.WriteFile(path, []byte(animalsSDL), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.True(t, s.HasType("FeedingEvent"))

	require.NoError(t, os.WriteFile(path, []byte("type {"), 0o644))
	_, err = Load(path)
	require.Error(t, err)
}
