// Package cmd implements the hookrelay CLI commands using Cobra.
//
// Available commands:
//   - serve: Run the relay server
//   - push: Send a request to /push/<key>
//   - poll: Take everything captured under a key
//   - stats: Show cache and traffic statistics of a running relay
//   - journal: Show events recorded in a relay journal
//   - init: Write a default hookrelay.yaml
//   - version: Show hookrelay version information
//
// Client commands find the relay through --relay or HOOKRELAY_URL.
package cmd
