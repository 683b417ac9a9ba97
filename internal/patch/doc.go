// Package patch computes and applies structural edits between JSON values.
//
// # Overview
//
// Diff compares two generic JSON values (the shapes produced by
// encoding/json when decoding into any) and returns the smallest list of
// operations that turns the first into the second. Identical inputs yield
// a nil Patch, which callers use to skip submitting no-op changes.
//
// # Operations
//
//   - insert: add an object key or an array element
//   - remove: drop an object key or an array element
//   - replace: overwrite a value whose type or scalar value changed
//   - edit: change a string in place with retain/insert/delete steps
//
// String edits are computed with a Myers diff over Unicode code points, so
// a step never splits a surrogate pair, a combining sequence member or an
// emoji joined with zero-width joiners. All step lengths count code points.
//
// # Wire Format
//
//	[
//	  {"p": ["files", "48213377", "text"], "k": "edit",
//	   "t": [{"retain": 14, "insert": " 🌍"}]},
//	  {"p": ["files", "90211573"], "k": "insert",
//	   "v": {"name": "assets/", "text": null}},
//	  {"p": ["files", "10427788"], "k": "remove"}
//	]
//
// Apply is a reference implementation of the receiving side; it is used by
// the in-process host and by tests to check that Apply(a, Diff(a, b))
// equals b.
package patch
