package editor

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Metadata keys and values used on the broker.
const (
	MetaOrigin  = "origin"
	MetaSource  = "source"
	MetaCommand = "command"
	MetaURL     = "url"

	SourceWindow = "window"
	SourcePort   = "port"
	SourceWorker = "worker"

	CommandOpen  = "open"
	CommandClose = "close"
	CommandPost  = "post"
)

// PubSubHost bridges the editor protocol onto a message broker. Inbound
// editor messages are read from In; replies and window commands are
// published to Out.
type PubSubHost struct {
	Sub message.Subscriber
	Pub message.Publisher
	In  string
	Out string
	Log zerolog.Logger
}

// Listen implements Host. Messages are delivered one at a time in broker
// order.
func (h *PubSubHost) Listen(fn func(Message)) (cancel func()) {
	ctx, stop := context.WithCancel(context.Background())
	var once sync.Once
	cancel = func() { once.Do(stop) }

	msgs, err := h.Sub.Subscribe(ctx, h.In)
	if err != nil {
		h.Log.Error().Err(err).Str("topic", h.In).Msg("subscribe to editor topic")
		return cancel
	}

	go func() {
		for msg := range msgs {
			m := h.decode(msg)
			msg.Ack()
			select {
			case <-ctx.Done():
				return
			default:
			}
			fn(m)
		}
	}()
	return cancel
}

func (h *PubSubHost) decode(msg *message.Message) Message {
	m := Message{
		Data:   string(msg.Payload),
		Origin: msg.Metadata.Get(MetaOrigin),
	}
	switch msg.Metadata.Get(MetaSource) {
	case SourceWindow:
		m.Source = &brokerWindow{host: h}
	case SourcePort:
		m.Source = Port{ID: msg.UUID}
	case SourceWorker:
		m.Source = Worker{ID: msg.UUID}
	}
	return m
}

func (h *PubSubHost) send(command, payload string, meta map[string]string) error {
	msg := message.NewMessage(watermill.NewUUID(), []byte(payload))
	msg.Metadata.Set(MetaCommand, command)
	for k, v := range meta {
		msg.Metadata.Set(k, v)
	}
	if err := h.Pub.Publish(h.Out, msg); err != nil {
		return errors.Wrapf(err, "publish %s to %s", command, h.Out)
	}
	return nil
}

// Open implements Launcher by publishing an open command carrying url.
func (h *PubSubHost) Open(url string) (Handle, error) {
	if err := h.send(CommandOpen, "", map[string]string{MetaURL: url}); err != nil {
		return nil, err
	}
	return &brokerHandle{host: h}, nil
}

// brokerWindow is the reply side of a window source.
type brokerWindow struct {
	host *PubSubHost
}

func (w *brokerWindow) PostMessage(data, origin string) error {
	return w.host.send(CommandPost, data, map[string]string{MetaOrigin: origin})
}

type brokerHandle struct {
	host *PubSubHost
	once sync.Once
	err  error
}

func (b *brokerHandle) Close() error {
	b.once.Do(func() {
		b.err = b.host.send(CommandClose, "", nil)
	})
	return b.err
}
