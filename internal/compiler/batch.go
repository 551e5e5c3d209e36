package compiler

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Outcome is the result of one query in a batch.
type Outcome struct {
	Result Result
	Err    error
}

// CompileAll compiles every input on a pool of workers and returns the
// outcomes in input order. workers <= 0 uses GOMAXPROCS. Inputs not yet
// started when ctx is cancelled fail with ctx.Err().
func CompileAll(ctx context.Context, inputs []Input, backend Backend, opts Options, workers int) []Outcome {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	out := make([]Outcome, len(inputs))
	// Errors stay in their own slot; the group itself never fails.
	var g errgroup.Group
	g.SetLimit(workers)
	for i := range inputs {
		if err := ctx.Err(); err != nil {
			out[i] = Outcome{Err: err}
			continue
		}
		i := i
		g.Go(func() error {
			res, err := Compile(ctx, inputs[i], backend, opts)
			out[i] = Outcome{Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
