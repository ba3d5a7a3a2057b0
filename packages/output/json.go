package output

import (
	"encoding/json"
	"io"
	"os"

	"github.com/abdul-hamid-achik/hookrelay/packages/api"
	"github.com/abdul-hamid-achik/hookrelay/packages/journal"
	"github.com/abdul-hamid-achik/hookrelay/packages/snapshot"
)

// JSONError is written by FormatError
type JSONError struct {
	Error string `json:"error"`
}

// JSONFormatter writes results as indented JSON, one document per call
type JSONFormatter struct {
	writer io.Writer
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func (f *JSONFormatter) FormatSnapshots(snaps []snapshot.Snapshot) {
	if snaps == nil {
		snaps = []snapshot.Snapshot{}
	}
	_ = f.encode(snaps)
}

func (f *JSONFormatter) FormatValues(paths []string, rows []map[string]any) {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		out[i] = make(map[string]any, len(paths))
		for _, p := range paths {
			out[i][p] = row[p]
		}
	}
	_ = f.encode(out)
}

func (f *JSONFormatter) FormatStats(st *api.StatsResponse) {
	_ = f.encode(st)
}

func (f *JSONFormatter) FormatEvents(events []journal.Event) {
	if events == nil {
		events = []journal.Event{}
	}
	_ = f.encode(events)
}

func (f *JSONFormatter) FormatError(err error) {
	_ = f.encode(JSONError{Error: err.Error()})
}

func (f *JSONFormatter) encode(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
