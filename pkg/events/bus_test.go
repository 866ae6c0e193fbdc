package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/telekom/smtp-notifier/pkg/notification"
	"github.com/telekom/smtp-notifier/pkg/system"
)

func TestBusPublishInOrder(t *testing.T) {
	bus := NewBus(system.NewTestLogger())
	var got []string
	bus.Subscribe(notification.KindNoticeMessage, func(_ context.Context, ev notification.Event) {
		got = append(got, "first:"+ev.Title)
	})
	bus.Subscribe(notification.KindNoticeMessage, func(_ context.Context, ev notification.Event) {
		got = append(got, "second:"+ev.Title)
	})
	bus.Subscribe("other.kind", func(context.Context, notification.Event) {
		got = append(got, "other")
	})

	n := bus.Publish(context.Background(), notification.KindNoticeMessage, notification.Event{Title: "hi"})
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"first:hi", "second:hi"}, got)
}

func TestBusNoSubscriber(t *testing.T) {
	bus := NewBus(nil)
	assert.Equal(t, 0, bus.Publish(context.Background(), notification.KindNoticeMessage, notification.Event{}))
}

func TestBusRecoversFromPanickingHandler(t *testing.T) {
	bus := NewBus(system.NewTestLogger())
	called := false
	bus.Subscribe(notification.KindNoticeMessage, func(context.Context, notification.Event) {
		panic("boom")
	})
	bus.Subscribe(notification.KindNoticeMessage, func(context.Context, notification.Event) {
		called = true
	})

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), notification.KindNoticeMessage, notification.Event{})
	})
	assert.True(t, called)
}
