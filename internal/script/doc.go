// Package script defines the narrow interface between the engine and
// user-supplied test code, and one reference loader that resolves a
// module path to a Module via the standard library's plugin mechanism.
package script
