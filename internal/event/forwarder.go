package event

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultForwardTopic is the broker topic used when none is configured.
const DefaultForwardTopic = "flowpanel.events"

// identified is implemented by entities that carry a stable UID.
type identified interface {
	UID() string
}

// Envelope is the broker representation of one bus delivery.
type Envelope struct {
	Channel Channel
	UID     string
	At      time.Time
}

// EncodeEnvelope renders env as a small JSON document.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	b := []byte(`{}`)
	var err error
	for _, kv := range []struct {
		path  string
		value any
	}{
		{"channel", env.Channel.String()},
		{"kind", env.Channel.Kind.String()},
		{"name", env.Channel.Name.String()},
		{"uid", env.UID},
		{"at", env.At.UTC().Format(time.RFC3339Nano)},
	} {
		b, err = sjson.SetBytes(b, kv.path, kv.value)
		if err != nil {
			return nil, errors.Wrapf(err, "set envelope %s", kv.path)
		}
	}
	return b, nil
}

// DecodeEnvelope parses a document produced by EncodeEnvelope.
func DecodeEnvelope(b []byte) (Envelope, error) {
	if !gjson.ValidBytes(b) {
		return Envelope{}, errors.New("envelope is not valid json")
	}
	res := gjson.GetManyBytes(b, "channel", "uid", "at")
	ch, ok := ParseChannel(res[0].String())
	if !ok {
		return Envelope{}, errors.Wrapf(ErrInvalidChannel, "envelope channel %q", res[0].String())
	}
	env := Envelope{Channel: ch, UID: res[1].String()}
	if at := res[2].String(); at != "" {
		t, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return Envelope{}, errors.Wrap(err, "parse envelope time")
		}
		env.At = t
	}
	return env, nil
}

// Forwarder is an observer bound to every channel that republishes each
// delivery on a message broker topic for observers outside the process.
type Forwarder struct {
	uid   string
	topic string
	pub   message.Publisher
	log   zerolog.Logger
	now   func() time.Time
}

// NewForwarder creates a forwarder publishing to topic on pub.
func NewForwarder(pub message.Publisher, topic string, log zerolog.Logger) *Forwarder {
	if topic == "" {
		topic = DefaultForwardTopic
	}
	return &Forwarder{
		uid:   "forwarder-" + watermill.NewShortUUID(),
		topic: topic,
		pub:   pub,
		log:   log,
		now:   time.Now,
	}
}

// UID implements Observer.
func (f *Forwarder) UID() string { return f.uid }

// Topic returns the broker topic.
func (f *Forwarder) Topic() string { return f.topic }

func (f *Forwarder) listener(kind Kind, name Name) Listener {
	ch := Channel{Kind: kind, Name: name}
	return func(_ context.Context, e Entity) error {
		env := Envelope{Channel: ch, At: f.now()}
		if id, ok := e.(identified); ok {
			env.UID = id.UID()
		}
		payload, err := EncodeEnvelope(env)
		if err != nil {
			return err
		}
		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set("channel", ch.String())
		if err := f.pub.Publish(f.topic, msg); err != nil {
			return errors.Wrapf(err, "forward %s", ch)
		}
		return nil
	}
}

// RuleListener implements RuleObserver.
func (f *Forwarder) RuleListener(name Name) Listener { return f.listener(KindRule, name) }

// FlowchartListener implements FlowchartObserver.
func (f *Forwarder) FlowchartListener(name Name) Listener { return f.listener(KindFlowchart, name) }

// MetricListener implements MetricObserver.
func (f *Forwarder) MetricListener(name Name) Listener { return f.listener(KindMetric, name) }

// StateListener implements StateObserver.
func (f *Forwarder) StateListener(name Name) Listener { return f.listener(KindState, name) }

// GraphListener implements GraphObserver.
func (f *Forwarder) GraphListener(name Name) Listener { return f.listener(KindGraph, name) }
