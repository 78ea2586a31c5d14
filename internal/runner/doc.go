// Package runner implements the top-level orchestration spec.md §4.7
// describes: resolve and load a test module, validate its options,
// start one executor per scenario behind a shared worker pool, print
// live progress, merge metrics on completion, evaluate the optional
// threshold, and report a pass/fail verdict.
package runner
