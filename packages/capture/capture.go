package capture

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"

	"github.com/abdul-hamid-achik/hookrelay/packages/snapshot"
)

// ErrSchemaMismatch is returned by ValidateBody when the body does not satisfy the schema
var ErrSchemaMismatch = errors.New("body does not match schema")

const (
	bodyPrefix   = "body"
	headerPrefix = "headers."
)

type Extractor struct {
	snap     snapshot.Snapshot
	doc      gjson.Result
	bodyJSON gjson.Result
}

func NewExtractor(s snapshot.Snapshot) *Extractor {
	e := &Extractor{snap: s}
	if data, err := json.Marshal(s); err == nil {
		e.doc = gjson.ParseBytes(data)
	}
	if gjson.Valid(s.Body) {
		e.bodyJSON = gjson.Parse(s.Body)
	}
	return e
}

// Extract resolves path against the snapshot. "body" is the whole body,
// "body.<path>" walks a JSON body, "headers.<name>" matches header names
// case-insensitively, and any other path is a gjson path over the snapshot.
func (e *Extractor) Extract(path string) (any, bool) {
	path = strings.TrimSpace(path)
	switch {
	case path == bodyPrefix:
		return e.extractFromBody("")
	case strings.HasPrefix(path, bodyPrefix+"."):
		return e.extractFromBody(strings.TrimPrefix(path, bodyPrefix+"."))
	case strings.HasPrefix(path, headerPrefix):
		return e.extractFromHeader(strings.TrimPrefix(path, headerPrefix))
	case path == "":
		return nil, false
	}

	result := e.doc.Get(path)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

func (e *Extractor) extractFromBody(path string) (any, bool) {
	if !e.bodyJSON.Exists() {
		if path == "" {
			return e.snap.Body, true
		}
		return nil, false
	}

	if path == "" {
		return e.bodyJSON.Value(), true
	}

	result := e.bodyJSON.Get(path)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

func (e *Extractor) extractFromHeader(name string) (any, bool) {
	return e.snap.Header(name)
}

// Extract is shorthand for NewExtractor(s).Extract(path)
func Extract(s snapshot.Snapshot, path string) (any, bool) {
	return NewExtractor(s).Extract(path)
}

// ExtractAll resolves every path, omitting the ones that do not match
func ExtractAll(s snapshot.Snapshot, paths []string) map[string]any {
	extractor := NewExtractor(s)
	results := make(map[string]any)

	for _, p := range paths {
		if value, ok := extractor.Extract(p); ok {
			results[p] = value
		}
	}

	return results
}

// ValidateBody checks the snapshot body against a JSON schema
func ValidateBody(schema []byte, s snapshot.Snapshot) error {
	if !gjson.Valid(s.Body) {
		return fmt.Errorf("%w: body is not JSON", ErrSchemaMismatch)
	}

	schemaLoader := gojsonschema.NewBytesLoader(schema)
	documentLoader := gojsonschema.NewStringLoader(s.Body)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("%w: %s", ErrSchemaMismatch, strings.Join(problems, "; "))
}
