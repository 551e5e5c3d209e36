// Package harness runs IR fixtures through every backend and checks the
// results.
//
// A fixture (see package fixture) lists, per backend, the outcome it
// expects:
//
//	expect:
//	  match: ok
//	  gremlin: ok
//	  cypher: ok
//	  sql: not_implemented
//
// An "ok" case passes when the emitted text equals the golden file
// <fixture>.<backend>.golden. Any other outcome passes when compilation
// fails with an error of that kind. A fixture without an expect block must
// compile on every backend.
//
// Tests use RunWithGolden, which compares through goldie so golden files
// can be regenerated with -update. The graphc test command uses
// Harness.RunDir, which reads the golden files directly.
package harness
