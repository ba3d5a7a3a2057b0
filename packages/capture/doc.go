// Package capture pulls values out of polled snapshots.
//
// Paths use gjson syntax:
//   - body            the raw body, or the decoded value when it is JSON
//   - body.items.0.id a field inside a JSON body
//   - headers.<name>  a header, matched case-insensitively
//   - method, ip, ... any other snapshot field
//
// ValidateBody checks a JSON body against a JSON schema.
package capture
