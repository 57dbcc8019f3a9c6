// Package log holds logger adapters used inside docship that are not part of
// the public pkg/log surface.
package log

import (
	"sync"

	"github.com/bft-labs/docship/internal/ports"
)

// Entry is one recorded log call.
type Entry struct {
	Level  string
	Msg    string
	Fields map[string]interface{}
}

// Recorder implements ports.Logger by keeping every entry in memory.
// It backs assertions on logged warnings in tests.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Debug(msg string, fields ...ports.Field) { r.add("debug", msg, fields) }
func (r *Recorder) Info(msg string, fields ...ports.Field)  { r.add("info", msg, fields) }
func (r *Recorder) Warn(msg string, fields ...ports.Field)  { r.add("warn", msg, fields) }
func (r *Recorder) Error(msg string, fields ...ports.Field) { r.add("error", msg, fields) }

func (r *Recorder) add(level, msg string, fields []ports.Field) {
	e := Entry{Level: level, Msg: msg, Fields: make(map[string]interface{}, len(fields))}
	for _, f := range fields {
		e.Fields[f.Key] = f.Value
	}
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

// Entries returns a copy of the recorded entries.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Count returns how many entries at level carry msg.
func (r *Recorder) Count(level, msg string) int {
	n := 0
	for _, e := range r.Entries() {
		if e.Level == level && e.Msg == msg {
			n++
		}
	}
	return n
}
