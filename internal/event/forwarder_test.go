package event

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := Envelope{Channel: Channel{Kind: KindState, Name: NameRefreshed}, UID: "s-1", At: at}

	b, err := EncodeEnvelope(in)
	require.NoError(t, err)
	require.JSONEq(t, `{"channel":"state$refreshed","kind":"state","name":"refreshed","uid":"s-1","at":"2026-03-01T12:00:00Z"}`, string(b))

	out, err := DecodeEnvelope(b)
	require.NoError(t, err)
	require.Equal(t, in.Channel, out.Channel)
	require.Equal(t, in.UID, out.UID)
	require.True(t, at.Equal(out.At))
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, err := DecodeEnvelope([]byte("not json"))
	require.Error(t, err)

	_, err = DecodeEnvelope([]byte(`{"channel":"panel$moved"}`))
	require.ErrorIs(t, err, ErrInvalidChannel)
}

func TestForwarderPublishesDeliveries(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 8}, watermill.NopLogger{})
	defer pubsub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := pubsub.Subscribe(ctx, DefaultForwardTopic)
	require.NoError(t, err)

	b := NewBus()
	f := NewForwarder(pubsub, "", zerolog.Nop())
	require.Equal(t, DefaultForwardTopic, f.Topic())
	b.SubscribeAll(f)
	require.Len(t, b.Subscriptions(f.UID()), 20)

	require.NoError(t, b.Publish(ctx, testEntity{kind: KindFlowchart, uid: "fc-1"}, NameInitialized))
	b.Acknowledge(ctx, KindState, NameRefreshed)

	// gochannel does not preserve order across messages.
	want := map[Channel]string{
		{Kind: KindFlowchart, Name: NameInitialized}: "fc-1",
		{Kind: KindState, Name: NameRefreshed}:       "",
	}
	for range 2 {
		select {
		case msg := <-msgs:
			env, err := DecodeEnvelope(msg.Payload)
			require.NoError(t, err)
			uid, ok := want[env.Channel]
			require.True(t, ok, "unexpected %s", env.Channel)
			require.Equal(t, uid, env.UID)
			require.Equal(t, env.Channel.String(), msg.Metadata.Get("channel"))
			delete(want, env.Channel)
			msg.Ack()
		case <-time.After(2 * time.Second):
			t.Fatalf("missing messages: %v", want)
		}
	}
	require.Equal(t, uint64(2), b.Stats().Delivered)
}
