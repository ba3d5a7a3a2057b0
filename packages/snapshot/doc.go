// Package snapshot captures inbound HTTP requests as immutable, serializable
// records.
//
// A Snapshot is what the relay stores on push and returns on poll. Its JSON
// form is:
//
//	{
//	  "http_version": "HTTP/1.1",
//	  "method": "POST",
//	  "headers": {"content-type": "application/json"},
//	  "query_string": "a=b",
//	  "path": "/orders",
//	  "body": "{\"id\":1}",
//	  "time": 1700000000123,
//	  "ip": "127.0.0.1"
//	}
//
// Header names are lower-cased. Repeated headers are joined with ", " in the
// order they arrived. Header values and payloads that are not valid UTF-8 are
// dropped (the body becomes "") rather than failing the capture.
package snapshot
