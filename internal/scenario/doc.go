// Package scenario holds the options data model a test module exports:
// an ordered set of named scenarios, each bound to an executor and its
// parameters, plus an optional threshold function evaluated against the
// final metrics report.
package scenario
