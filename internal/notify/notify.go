// Package notify carries user-facing messages out of the engine.
//
// The engine never formats UI; it hands a message and a category to a Sink.
// Sinks must not block the caller for long and must be safe to call from any
// goroutine, since the sync gateway reports failures from its flusher.
package notify

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Category classifies a notification.
type Category string

const (
	CategoryQuest   Category = "quest"
	CategoryWarning Category = "warning"
	CategoryPenalty Category = "penalty"
	CategoryError   Category = "error"
	CategorySuccess Category = "success"
	CategoryInfo    Category = "info"
)

// ParseCategory normalizes a category token. Unknown tokens map to info.
func ParseCategory(raw string) Category {
	switch c := Category(strings.ToLower(strings.TrimSpace(raw))); c {
	case CategoryQuest, CategoryWarning, CategoryPenalty, CategoryError, CategorySuccess, CategoryInfo:
		return c
	default:
		return CategoryInfo
	}
}

// Sink receives notifications.
type Sink interface {
	AddNotification(message string, category Category)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(message string, category Category)

// AddNotification calls f.
func (f SinkFunc) AddNotification(message string, category Category) {
	f(message, category)
}

// Discard drops every notification.
var Discard Sink = SinkFunc(func(string, Category) {})

// Notification is a recorded message.
type Notification struct {
	Message  string    `json:"message"`
	Category Category  `json:"category"`
	At       time.Time `json:"at"`
}

// LogSink writes notifications to a structured logger. Errors and penalties
// log at warn, everything else at info.
type LogSink struct {
	Logger *slog.Logger
}

// AddNotification logs the message.
func (s LogSink) AddNotification(message string, category Category) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if category == CategoryError || category == CategoryPenalty {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, message, "category", string(category))
}

// Recorder keeps notifications in memory, newest last.
type Recorder struct {
	mu    sync.Mutex
	now   func() time.Time
	items []Notification
}

// NewRecorder creates an empty recorder. A nil now uses time.Now.
func NewRecorder(now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{now: now}
}

// AddNotification records the message.
func (r *Recorder) AddNotification(message string, category Category) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, Notification{Message: message, Category: category, At: r.now()})
}

// All returns a copy of every recorded notification.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// ByCategory returns the recorded notifications of one category.
func (r *Recorder) ByCategory(c Category) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notification
	for _, n := range r.items {
		if n.Category == c {
			out = append(out, n)
		}
	}
	return out
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}

// Fanout delivers each notification to every sink in order.
type Fanout []Sink

// AddNotification forwards to each sink.
func (f Fanout) AddNotification(message string, category Category) {
	for _, s := range f {
		if s != nil {
			s.AddNotification(message, category)
		}
	}
}
