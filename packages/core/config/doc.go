// Package config handles configuration loading and management for hookrelay.
//
// Settings are layered, later layers winning:
//   - built-in defaults
//   - hookrelay.yaml / hookrelay.json (or the dotfile variants) in the working directory
//   - HOOKRELAY_* environment variables
//   - command-line flags
//
// Load applies the layers in that order and validates the result. Watch
// calls a Loader again on every file change, so a running server that
// reloads through Load keeps its environment and flag overrides.
package config
