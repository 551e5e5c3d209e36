// Package queryir is the relational query model targeted by the SQL
// lowering of graph IR.
//
// A graph query over vertices and edges becomes one Select: the query root
// is the FROM table, each traversed edge is a join described by a pair of
// columns, filters become predicates and outputs become aliased columns.
//
//	[graph IR] → [queryir.Select] → [querysql text + args]
//
// Query, Predicate and Operand are sealed interfaces using the marker
// method pattern, so backends can switch over them exhaustively:
//
//	switch p := pred.(type) {
//	case Compare:
//	case And, Or:
//	case IsNull:
//	case In:
//	}
//
// PORTABLE FRAGMENT:
//
// Validate reports features that only some SQL engines, or no relational
// engine without extensions, handle the same way: outer joins, NULL checks
// and disjunctions. They are allowed; the warnings are informational.
//
// Values never appear in emitted SQL text. Every Value and Param operand
// is bound as a positional argument by querysql.
package queryir
