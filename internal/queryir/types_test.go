package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConjoin(t *testing.T) {
	a := Compare{Op: OpEq, Left: ColumnRef{Table: "t", Column: "a"}, Right: Param{Name: "a"}}
	b := IsNull{Operand: ColumnRef{Table: "t", Column: "b"}}

	testCases := []struct {
		name  string
		preds []Predicate
		want  Predicate
	}{
		{name: "empty", want: nil},
		{name: "only nils", preds: []Predicate{nil, nil}, want: nil},
		{name: "single", preds: []Predicate{nil, a}, want: a},
		{name: "several", preds: []Predicate{a, nil, b}, want: And{Predicates: []Predicate{a, b}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Conjoin(tc.preds...))
		})
	}
}

func TestSealedInterfaces(t *testing.T) {
	var q Query = Select{From: Table{Name: "animal", Alias: "a"}}
	switch q.(type) {
	case Select:
	default:
		t.Fatal("unexpected type")
	}

	for _, o := range []Operand{ColumnRef{}, Param{}, Value{}} {
		assert.NotNil(t, o)
	}
}
