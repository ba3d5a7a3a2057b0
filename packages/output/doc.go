// Package output provides formatters for displaying captured requests.
//
// Supported output formats:
//   - Console: Human-readable colored terminal output, with JSON bodies pretty printed
//   - JSON: Machine-readable JSON output
//
// Both implement the Formatter interface.
package output
