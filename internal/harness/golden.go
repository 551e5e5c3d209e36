package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/graphc/internal/compiler"
	"github.com/roach88/graphc/internal/fixture"
)

// AssertGolden compares emitted query text against
// testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name, query string) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, GoldenBytes(query))
}

// RunWithGolden loads the fixture at path, checks every expected outcome
// and compares each successful compilation through goldie, so -update
// regenerates the golden files.
func RunWithGolden(t *testing.T, path string, opts compiler.Options) {
	t.Helper()
	q, err := fixture.Load(path)
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	// Golden comparison is left to goldie, so the harness runs in update
	// mode against a scratch directory.
	h := New(opts, t.TempDir(), true)
	results, err := h.Run(context.Background(), q)
	if err != nil {
		t.Fatalf("run fixture: %v", err)
	}
	for _, r := range results {
		t.Run(string(r.Backend), func(t *testing.T) {
			if r.Want != r.Got {
				t.Fatalf("%s: %s", r.Fixture, r.Message())
			}
			if r.Got == OutcomeOK {
				AssertGolden(t, GoldenName(r.Fixture, r.Backend), r.Query)
			}
		})
	}
}
