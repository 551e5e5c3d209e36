// Package ir defines the intermediate representation shared by every stage
// of the compiler: blocks, expressions, locations and the query metadata table.
//
// All IR values are immutable. Rewrites build new values; nothing in this
// package mutates a block or expression after construction. Blocks and
// expressions are closed sum types: the unexported marker methods keep new
// variants from appearing outside this package, so type switches over them
// are exhaustive.
//
// ir imports nothing internal.
package ir
