package notifications

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type dispatcherFunc func(ctx context.Context, to Recipient, msg Message) error

func (f dispatcherFunc) Send(ctx context.Context, to Recipient, msg Message) error {
	return f(ctx, to, msg)
}

func TestFanout(t *testing.T) {
	ok := dispatcherFunc(func(context.Context, Recipient, Message) error { return nil })
	fail := dispatcherFunc(func(context.Context, Recipient, Message) error { return errors.New("down") })
	ctx := context.Background()
	to := Recipient{ID: "e1", Email: "e1@example.com"}

	assert.NoError(t, Fanout{ok}.Send(ctx, to, Message{}))
	assert.NoError(t, Fanout{fail, ok}.Send(ctx, to, Message{}))
	assert.EqualError(t, Fanout{fail, fail}.Send(ctx, to, Message{}), "down\ndown")
	assert.Error(t, Fanout{}.Send(ctx, to, Message{}))
}

func TestLogDispatcher(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, LogDispatcher{}.Send(ctx, Recipient{ID: "e1", Email: "e1@example.com"}, Message{Subject: "hi"}))
	assert.Error(t, LogDispatcher{}.Send(ctx, Recipient{ID: "e1"}, Message{Subject: "hi"}))
}
