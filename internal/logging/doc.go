// Package logging constructs the single logrus.Logger the whole engine
// shares: a text formatter, level driven by the DEBUG environment
// variable, and per-worker/per-scenario field tagging left to callers
// via entry.WithField.
package logging
