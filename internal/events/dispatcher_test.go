package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishRunsEveryHandler(t *testing.T) {
	d := NewInMemoryDispatcher()
	var order []string
	d.Subscribe(EventTicketStateChanged, func(context.Context, Event) error {
		order = append(order, "first")
		return errors.New("boom")
	})
	d.Subscribe(EventTicketStateChanged, func(context.Context, Event) error {
		order = append(order, "second")
		return nil
	})
	d.Subscribe(EventTicketCommentAdded, func(context.Context, Event) error {
		order = append(order, "other")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketStateChanged})
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	assert.NoError(t, NewInMemoryDispatcher().Publish(context.Background(), Event{Type: EventTicketCommentAdded}))
}

func TestUserActor(t *testing.T) {
	assert.Equal(t, ActorSystem, UserActor("").Type)
	actor := UserActor("u1")
	assert.Equal(t, ActorUser, actor.Type)
	assert.Equal(t, "u1", *actor.UserID)
}

func TestPublishRecoversPanics(t *testing.T) {
	d := NewInMemoryDispatcher()
	called := false
	d.Subscribe(EventConfirmationDecided, func(context.Context, Event) error {
		panic("nil map")
	})
	d.Subscribe(EventConfirmationDecided, func(context.Context, Event) error {
		called = true
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventConfirmationDecided})
	assert.ErrorContains(t, err, "handler panicked: nil map")
	assert.True(t, called)
}
