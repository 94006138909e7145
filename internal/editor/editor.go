// Package editor implements the message protocol between the panel and an
// external visual editor running in a separately owned window.
//
// The editor announces itself with "ready", to which the panel replies with
// the current layout document. Any other non-empty payload is an edited
// document; it is applied and the session ends. An empty payload ends the
// session without changes. Messages that arrive after the session ended are
// ignored.
package editor

import (
	"context"
	"net/url"
)

// ReadyMessage is sent by the editor once it can receive a document.
const ReadyMessage = "ready"

// Message is one inbound message from the editor side.
type Message struct {
	Data   string
	Source any
	Origin string
}

// Window is a directly addressable message source. Only windows receive
// replies.
type Window interface {
	PostMessage(data, origin string) error
}

// Port is a message channel source. It is not addressable.
type Port struct {
	ID string
}

// Worker is a background worker source. It is not addressable.
type Worker struct {
	ID string
}

// Host delivers inbound editor messages. The returned cancel function
// deregisters the listener.
type Host interface {
	Listen(fn func(Message)) (cancel func())
}

// Launcher opens the editor window.
type Launcher interface {
	Open(url string) (Handle, error)
}

// Handle is an opened editor window.
type Handle interface {
	Close() error
}

// Controller is the document owner the session edits.
type Controller interface {
	CurrentDocument() (string, error)
	ApplyDocument(ctx context.Context, xml string) error
}

// URL returns the embed URL of the editor at base with the given UI theme.
func URL(base, theme string) string {
	return base + "?embed=1&spin=1&libraries=1&ui=" + url.QueryEscape(theme)
}
