package lowering

// Tracer observes a backend pipeline. It is called after each pass with the
// pass name and the size of its result: the number of blocks, or the number
// of steps once a backend has regrouped the blocks. A nil Tracer is valid.
type Tracer func(pass string, size int)

// Pass reports one finished pass.
func (t Tracer) Pass(pass string, size int) {
	if t != nil {
		t(pass, size)
	}
}
