package editor

import (
	"context"
	"errors"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrNoLauncher is returned by Open without a launcher.
var ErrNoLauncher = errors.New("editor launcher is nil")

// Session is one edit session against a Controller.
// All methods are safe for concurrent use; Handle may be called again for
// the same message without side effects once the session ended.
type Session struct {
	host Host
	ctrl Controller
	log  zerolog.Logger

	mu     sync.Mutex
	open   bool
	handle Handle
	cancel func()
}

// NewSession returns a closed session.
func NewSession(host Host, ctrl Controller, log zerolog.Logger) *Session {
	return &Session{host: host, ctrl: ctrl, log: log}
}

// Open launches the editor at url and starts listening for its messages.
// An already open session is closed first.
func (s *Session) Open(ctx context.Context, url string, l Launcher) error {
	if l == nil {
		return ErrNoLauncher
	}
	s.Close()

	h, err := l.Open(url)
	if err != nil {
		return pkgerrors.Wrap(err, "open editor")
	}

	s.mu.Lock()
	s.open = true
	s.handle = h
	s.mu.Unlock()

	if s.host != nil {
		cancel := s.host.Listen(func(m Message) {
			s.Handle(ctx, m)
		})
		s.mu.Lock()
		if s.open && s.handle == h {
			s.cancel = cancel
			cancel = nil
		}
		s.mu.Unlock()
		// The session ended while registering.
		if cancel != nil {
			cancel()
		}
	}

	s.log.Info().Str("url", url).Msg("editor opened")
	return nil
}

// IsOpen reports whether an edit session is open.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Handle processes one inbound message.
func (s *Session) Handle(ctx context.Context, m Message) {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		s.log.Debug().Msg("editor message after close ignored")
		return
	}
	if m.Data == ReadyMessage {
		s.mu.Unlock()
		s.reply(m)
		return
	}
	// Both an edit and an empty payload end the session; claim the end
	// now so a repeated message finds it closed.
	s.open = false
	s.mu.Unlock()

	if m.Data != "" {
		if err := s.ctrl.ApplyDocument(ctx, m.Data); err != nil {
			s.log.Error().Err(err).Msg("apply edited document")
		}
	}
	s.release()
}

func (s *Session) reply(m Message) {
	w, ok := m.Source.(Window)
	if !ok {
		s.log.Debug().Str("source", sourceName(m.Source)).Msg("ready from unaddressable source")
		return
	}
	doc, err := s.ctrl.CurrentDocument()
	if err != nil {
		s.log.Error().Err(err).Msg("read current document")
		return
	}
	if err := w.PostMessage(doc, m.Origin); err != nil {
		s.log.Error().Err(err).Str("origin", m.Origin).Msg("post document to editor")
	}
}

// Close closes the editor window and deregisters the listener. Closing a
// session that is not open is a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	s.open = false
	s.mu.Unlock()
	s.release()
}

func (s *Session) release() {
	s.mu.Lock()
	h, cancel := s.handle, s.cancel
	s.handle, s.cancel = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if h != nil {
		if err := h.Close(); err != nil {
			s.log.Error().Err(err).Msg("close editor window")
		}
		s.log.Info().Msg("editor closed")
	}
}

func sourceName(src any) string {
	switch src.(type) {
	case nil:
		return "none"
	case Port, *Port:
		return "port"
	case Worker, *Worker:
		return "worker"
	default:
		return "unknown"
	}
}
