package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usersvc/internal/mail"
)

type fakeChannel struct {
	exchange   string
	key        string
	publishing amqp.Publishing
	err        error
	closed     bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.publishing = exchange, key, msg
	return f.err
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestMailPublisher_Dispatch(t *testing.T) {
	ch := &fakeChannel{}
	p := &MailPublisher{queueName: "mail.outbound", ch: ch}

	msg := mail.VerificationMessage("alice@x.com", "http://link")
	require.NoError(t, p.Dispatch(context.Background(), msg))

	assert.Equal(t, "", ch.exchange)
	assert.Equal(t, "mail.outbound", ch.key)
	assert.Equal(t, amqp.Persistent, ch.publishing.DeliveryMode)
	assert.Equal(t, "application/json", ch.publishing.ContentType)
	assert.Equal(t, msg.ID, ch.publishing.MessageId)

	var decoded mail.Message
	require.NoError(t, json.Unmarshal(ch.publishing.Body, &decoded))
	assert.Equal(t, msg.To, decoded.To)
	assert.Equal(t, msg.Body, decoded.Body)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestMailPublisher_DispatchError(t *testing.T) {
	p := &MailPublisher{queueName: "q", ch: &fakeChannel{err: errors.New("channel closed")}}
	err := p.Dispatch(context.Background(), mail.PasswordResetMessage("a@x.com", "l"))
	assert.Error(t, err)
}
