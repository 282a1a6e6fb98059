// Package routine provides the test routines the worker loop invokes: an
// external program and a built-in set of known-answer checks.
package routine
