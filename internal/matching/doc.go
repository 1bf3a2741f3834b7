// Package matching evaluates handler restrictions against captured requests.
//
// It covers:
//
//   - Path matching: exact paths, named parameters (:id or {id}) and
//     doublestar globs (/files/**)
//   - Method matching
//   - Header subsets: case-insensitive names, exact values
//   - Search param subsets: exact values
//   - Body equality through the body package
//   - Computed restrictions: Go predicates and expr-lang expressions
//
// Evaluation stops at the first mismatching restriction. That restriction's
// expected and received values are captured in a Fragment so diagnostics
// can be rendered later without re-running the match.
package matching
