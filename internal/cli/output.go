package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"

	"example.com/fittrack/internal/gateway"
)

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *app) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
}

// sourceNote explains data that did not come from the server.
func sourceNote(w io.Writer, source gateway.Source) {
	switch source {
	case gateway.SourceCache:
		fmt.Fprintln(w, "(offline: showing data saved on this device)")
	case gateway.SourceOffline:
		fmt.Fprintln(w, "(offline: nothing saved on this device yet)")
	}
}
