package chat

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	UserName      = "Você"
	AssistantName = "Assistente"

	maxLines = 100
)

type Line struct {
	Who  string `json:"who"`
	Text string `json:"text"`
	Err  bool   `json:"erro,omitempty"`
}

// Asker is what a Session needs from the Client.
type Asker interface {
	Ask(ctx context.Context, msg string) (string, error)
}

// Session keeps one conversation with at most one request in flight.
type Session struct {
	asker Asker

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
	lines  []Line
	used   time.Time
}

func NewSession(a Asker) *Session {
	return &Session{asker: a, used: time.Now()}
}

// Send cancels any request still running on this session and asks msg.
// The canceled call returns ErrSuperseded and leaves no error line.
func (s *Session) Send(ctx context.Context, msg string) (string, error) {
	msg = Clean(msg)
	if msg == "" {
		return "", ErrEmpty
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	seq := s.seq
	s.cancel = cancel
	s.used = time.Now()
	s.appendLocked(Line{Who: UserName, Text: msg})
	s.mu.Unlock()

	reply, err := s.asker.Ask(ctx, msg)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		return "", ErrSuperseded
	}
	s.cancel = nil
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		s.appendLocked(Line{Who: AssistantName, Text: ErrorLine(err), Err: true})
		return "", err
	}
	s.appendLocked(Line{Who: AssistantName, Text: reply})
	return reply, nil
}

// Cancel aborts the request in flight, if any.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.seq++
}

func (s *Session) Transcript() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Line(nil), s.lines...)
}

func (s *Session) appendLocked(l Line) {
	s.lines = append(s.lines, l)
	if len(s.lines) > maxLines {
		s.lines = s.lines[len(s.lines)-maxLines:]
	}
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// Sessions hands out one Session per key, e.g. per browser.
type Sessions struct {
	asker Asker
	ttl   time.Duration

	mu sync.Mutex
	m  map[string]*Session
}

func NewSessions(a Asker, ttl time.Duration) *Sessions {
	return &Sessions{asker: a, ttl: ttl, m: make(map[string]*Session)}
}

// Get returns the session for key, dropping sessions idle longer than the ttl.
func (ss *Sessions) Get(key string) *Session {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	now := time.Now()
	for k, s := range ss.m {
		if ss.ttl > 0 && k != key && now.Sub(s.idleSince()) > ss.ttl {
			s.Cancel()
			delete(ss.m, k)
		}
	}
	s, ok := ss.m[key]
	if !ok {
		s = NewSession(ss.asker)
		ss.m[key] = s
	}
	return s
}

func (ss *Sessions) Len() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.m)
}
