package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/abdul-hamid-achik/hookrelay/packages/api"
	"github.com/abdul-hamid-achik/hookrelay/packages/journal"
	"github.com/abdul-hamid-achik/hookrelay/packages/snapshot"
)

// Formatter renders relay results
type Formatter interface {
	FormatSnapshots(snaps []snapshot.Snapshot)
	FormatValues(paths []string, rows []map[string]any)
	FormatStats(st *api.StatsResponse)
	FormatEvents(events []journal.Event)
	FormatError(err error)
}

// formatValue formats a value for display, truncating or summarizing large values
func formatValue(v any, maxLen int) string {
	switch val := v.(type) {
	case []any:
		return fmt.Sprintf("[array with %d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	case nil:
		return "<missing>"
	}
	str := fmt.Sprintf("%v", v)
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) FormatSnapshots(snaps []snapshot.Snapshot) {
	bold := color.New(color.Bold).SprintFunc()

	for i, s := range snaps {
		if i > 0 {
			fmt.Fprintln(f.writer)
		}
		f.formatSnapshot(s)
	}

	noun := "requests"
	if len(snaps) == 1 {
		noun = "request"
	}
	fmt.Fprintf(f.writer, "\n%s\n", bold(fmt.Sprintf("%d %s", len(snaps), noun)))
}

func (f *ConsoleFormatter) formatSnapshot(s snapshot.Snapshot) {
	cyan := color.New(color.FgCyan).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	target := s.Path
	if s.QueryString != "" {
		target += "?" + s.QueryString
	}

	fmt.Fprintf(f.writer, "%s %s %s\n",
		methodColor(s.Method)(fmt.Sprintf("%-7s", s.Method)),
		bold(target),
		faint(fmt.Sprintf("from %s at %s", s.IP, s.CapturedAt().Format("15:04:05.000"))))

	if f.verbose {
		fmt.Fprintf(f.writer, "  %s\n", faint(s.HTTPVersion))
		names := make([]string, 0, len(s.Headers))
		for name := range s.Headers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(f.writer, "  %s %s\n", cyan(name+":"), s.Headers[name])
		}
	}

	if s.Body != "" {
		fmt.Fprintln(f.writer)
		fmt.Fprintln(f.writer, indent(f.renderBody(s.Body), "  "))
	}
}

// renderBody pretty prints JSON bodies and leaves anything else untouched
func (f *ConsoleFormatter) renderBody(body string) string {
	if !gjson.Valid(body) {
		return strings.TrimRight(body, "\n")
	}
	out := pretty.Pretty([]byte(body))
	if !color.NoColor {
		out = pretty.Color(out, nil)
	}
	return strings.TrimRight(string(out), "\n")
}

func (f *ConsoleFormatter) FormatValues(paths []string, rows []map[string]any) {
	cyan := color.New(color.FgCyan).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	for i, row := range rows {
		if len(rows) > 1 {
			fmt.Fprintf(f.writer, "%s\n", faint(fmt.Sprintf("#%d", i+1)))
		}
		for _, p := range paths {
			fmt.Fprintf(f.writer, "  %s = %s\n", cyan(p), formatValue(row[p], 200))
		}
	}
}

func (f *ConsoleFormatter) FormatStats(st *api.StatsResponse) {
	bold := color.New(color.Bold).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(f.writer, "%s\n", bold("Cache"))
	fmt.Fprintf(f.writer, "  Keys:        %d / %d\n", st.Cache.Keys, st.Cache.Capacity)
	fmt.Fprintf(f.writer, "  Snapshots:   %d\n", st.Cache.Snapshots)
	fmt.Fprintf(f.writer, "  TTL:         %s\n", (time.Duration(st.Cache.TTLMillis) * time.Millisecond).String())
	fmt.Fprintf(f.writer, "  Evictions:   %s\n", warnIfPositive(yellow, st.Cache.Evictions))
	fmt.Fprintf(f.writer, "  Expirations: %d\n", st.Cache.Expirations)

	m := st.Metrics
	fmt.Fprintf(f.writer, "\n%s\n", bold("Traffic"))
	fmt.Fprintf(f.writer, "  Uptime:       %s\n", m.Uptime)
	fmt.Fprintf(f.writer, "  Pushes:       %d\n", m.Pushes)
	fmt.Fprintf(f.writer, "  Polls:        %d hit, %d miss\n", m.PollHits, m.PollMisses)
	fmt.Fprintf(f.writer, "  Rate limited: %s\n", warnIfPositive(yellow, m.RateLimited))
	if m.LastPushAt > 0 {
		fmt.Fprintf(f.writer, "  Last push:    %s\n", time.UnixMilli(m.LastPushAt).Format(time.RFC3339))
	}

	fmt.Fprintf(f.writer, "\n%s\n", bold("Latency (µs)"))
	fmt.Fprintf(f.writer, "  %s\n", cyan(fmt.Sprintf("p50=%d p95=%d p99=%d max=%d",
		m.Latency.P50, m.Latency.P95, m.Latency.P99, m.Latency.Max)))
	fmt.Fprintf(f.writer, "%s\n", bold("Body size (bytes)"))
	fmt.Fprintf(f.writer, "  %s\n", cyan(fmt.Sprintf("p50=%d p95=%d p99=%d max=%d",
		m.BodySize.P50, m.BodySize.P95, m.BodySize.P99, m.BodySize.Max)))
}

func (f *ConsoleFormatter) FormatEvents(events []journal.Event) {
	faint := color.New(color.Faint).SprintFunc()

	if len(events) == 0 {
		fmt.Fprintln(f.writer, faint("no events"))
		return
	}
	for _, ev := range events {
		fmt.Fprintf(f.writer, "%s  %s  %-40s %3d  %s\n",
			faint(ev.At.Format("2006-01-02 15:04:05.000")),
			kindColor(ev.Kind)(fmt.Sprintf("%-6s", ev.Kind)),
			ev.Key,
			ev.Count,
			faint(ev.IP))
	}
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", bold("hookrelay"), version)
}

func methodColor(method string) func(a ...interface{}) string {
	switch method {
	case "GET", "HEAD", "OPTIONS":
		return color.New(color.FgGreen, color.Bold).SprintFunc()
	case "POST", "PUT", "PATCH":
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case "DELETE":
		return color.New(color.FgRed, color.Bold).SprintFunc()
	default:
		return color.New(color.FgMagenta, color.Bold).SprintFunc()
	}
}

func kindColor(kind journal.Kind) func(a ...interface{}) string {
	switch kind {
	case journal.KindPush:
		return color.New(color.FgYellow).SprintFunc()
	case journal.KindPoll:
		return color.New(color.FgGreen).SprintFunc()
	case journal.KindEvict, journal.KindExpire:
		return color.New(color.FgRed).SprintFunc()
	default:
		return color.New(color.Faint).SprintFunc()
	}
}

func warnIfPositive(warn func(a ...interface{}) string, n int64) string {
	if n > 0 {
		return warn(n)
	}
	return fmt.Sprint(n)
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
