// Package config loads supervisor-level settings — pool sizing, RPC
// timeout slack, and progress-printer interval — from an optional YAML
// file, applying built-in defaults for anything the file omits.
package config
