// Package testlog records log entries so tests can assert on them.
package testlog

import (
	"sync"

	"github.com/Orurh/courier-dispatch/internal/logx"
)

// Entry is one recorded log call. Fields include those added via With.
type Entry struct {
	Level  string
	Msg    string
	Fields []logx.Field
}

// Field returns the value of the last field named key.
func (e Entry) Field(key string) (any, bool) {
	for i := len(e.Fields) - 1; i >= 0; i-- {
		if e.Fields[i].Key == key {
			return e.Fields[i].Value, true
		}
	}
	return nil, false
}

// Recorder collects entries from every logger it hands out. Safe for
// concurrent use.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// New returns an empty Recorder.
func New() *Recorder { return &Recorder{} }

// Logger returns a logx.Logger writing into r.
func (r *Recorder) Logger() logx.Logger {
	return recorderLogger{r: r}
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Find returns the first entry with message msg.
func (r *Recorder) Find(msg string) (Entry, bool) {
	for _, e := range r.Entries() {
		if e.Msg == msg {
			return e, true
		}
	}
	return Entry{}, false
}

// FindAll returns every entry with message msg.
func (r *Recorder) FindAll(msg string) []Entry {
	var out []Entry
	for _, e := range r.Entries() {
		if e.Msg == msg {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) add(level, msg string, base, fields []logx.Field) {
	all := make([]logx.Field, 0, len(base)+len(fields))
	all = append(append(all, base...), fields...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Msg: msg, Fields: all})
}

type recorderLogger struct {
	r    *Recorder
	base []logx.Field
}

var _ logx.Logger = recorderLogger{}

func (l recorderLogger) Debug(msg string, f ...logx.Field) { l.r.add("debug", msg, l.base, f) }
func (l recorderLogger) Info(msg string, f ...logx.Field)  { l.r.add("info", msg, l.base, f) }
func (l recorderLogger) Warn(msg string, f ...logx.Field)  { l.r.add("warn", msg, l.base, f) }
func (l recorderLogger) Error(msg string, f ...logx.Field) { l.r.add("error", msg, l.base, f) }
func (l recorderLogger) Sync() error                       { return nil }

func (l recorderLogger) With(f ...logx.Field) logx.Logger {
	base := make([]logx.Field, 0, len(l.base)+len(f))
	return recorderLogger{r: l.r, base: append(append(base, l.base...), f...)}
}
