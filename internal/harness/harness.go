package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/graphc/internal/compiler"
	"github.com/roach88/graphc/internal/fixture"
)

// Harness compiles fixtures and checks each expected outcome, comparing
// emitted text against golden files.
type Harness struct {
	opts      compiler.Options
	goldenDir string
	update    bool
}

// New creates a harness. Golden files live in goldenDir as
// <fixture>.<backend>.golden. With update set, golden files are rewritten
// instead of compared.
func New(opts compiler.Options, goldenDir string, update bool) *Harness {
	return &Harness{opts: opts, goldenDir: goldenDir, update: update}
}

// GoldenName is the golden file base name for one fixture and backend.
func GoldenName(fixtureName string, backend compiler.Backend) string {
	return fixtureName + "." + string(backend)
}

// GoldenBytes is the golden file content for emitted query text.
func GoldenBytes(query string) []byte {
	return []byte(query + "\n")
}

// RunDir runs every *.yaml fixture in dir, in file name order.
func (h *Harness) RunDir(ctx context.Context, dir string) ([]CaseResult, error) {
	paths, err := FindFixtures(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no fixtures found in %s", dir)
	}
	var out []CaseResult
	for _, p := range paths {
		results, err := h.RunFile(ctx, p)
		if err != nil {
			return out, err
		}
		out = append(out, results...)
	}
	return out, nil
}

// FindFixtures lists the *.yaml and *.yml files below dir, sorted.
func FindFixtures(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ext := filepath.Ext(path); !d.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// RunFile loads one fixture and runs its cases.
func (h *Harness) RunFile(ctx context.Context, path string) ([]CaseResult, error) {
	q, err := fixture.Load(path)
	if err != nil {
		return nil, err
	}
	return h.Run(ctx, q)
}

// Run compiles q for every backend it expects an outcome for. A fixture
// with no expectations must compile on every backend.
func (h *Harness) Run(ctx context.Context, q *fixture.Query) ([]CaseResult, error) {
	expect, err := expectations(q)
	if err != nil {
		return nil, err
	}
	in := compiler.Input{Name: q.Name, Blocks: q.Blocks, Meta: q.Meta, Hints: q.Hints}

	var out []CaseResult
	for _, backend := range compiler.Backends() {
		want, ok := expect[backend]
		if !ok {
			continue
		}
		res, compileErr := compiler.Compile(ctx, in, backend, h.opts)
		c := CaseResult{
			Fixture: q.Name,
			Backend: backend,
			Want:    want,
			Got:     Classify(compileErr),
		}
		if compileErr != nil {
			c.Err = compileErr.Error()
		} else {
			c.Query = res.Query
		}
		if c.Got == OutcomeOK && c.Want == OutcomeOK {
			if c.Golden, err = h.golden(GoldenName(q.Name, backend), res.Query); err != nil {
				return out, err
			}
		}
		c.Pass = c.Want == c.Got && c.Golden == ""
		out = append(out, c)
	}
	return out, nil
}

func expectations(q *fixture.Query) (map[compiler.Backend]Outcome, error) {
	out := make(map[compiler.Backend]Outcome)
	if len(q.Expect) == 0 {
		for _, b := range compiler.Backends() {
			out[b] = OutcomeOK
		}
		return out, nil
	}
	for name, outcome := range q.Expect {
		b, err := compiler.ParseBackend(name)
		if err != nil {
			return nil, fmt.Errorf("fixture %s: %w", q.Name, err)
		}
		out[b] = Outcome(outcome)
	}
	return out, nil
}

// golden compares query with the golden file, or rewrites it in update
// mode. It returns a mismatch description, empty when they agree.
func (h *Harness) golden(name, query string) (string, error) {
	path := filepath.Join(h.goldenDir, name+".golden")
	want := GoldenBytes(query)
	if h.update {
		if err := os.MkdirAll(h.goldenDir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create golden directory: %w", err)
		}
		if err := os.WriteFile(path, want, 0o644); err != nil {
			return "", fmt.Errorf("failed to write golden file: %w", err)
		}
		return "", nil
	}
	got, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Sprintf("missing golden file %s", path), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read golden file: %w", err)
	}
	if !bytes.Equal(got, want) {
		return fmt.Sprintf("output differs from %s:\n  golden: %s\n  actual: %s",
			path, strings.TrimSuffix(string(got), "\n"), query), nil
	}
	return "", nil
}
