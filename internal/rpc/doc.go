// Package rpc implements the correlated request/response transport used
// between the supervisor and its workers: a caller posts a message
// {id, name, args}, and later receives exactly one matching
// {id, result} or {id, error}. Each call carries its own timeout; a
// response for a call that has already timed out is a protocol error
// that must be observable but must never crash the caller.
package rpc
