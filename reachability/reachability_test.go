package reachability_test

import (
	"testing"
	"time"

	"github.com/xraph/keel/reachability"
)

func TestSubscribeReceivesNotification(t *testing.T) {
	t.Parallel()

	hub := reachability.NewHub()
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.NotifyReachable()

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the notification")
	}
}

func TestNotificationsCoalesce(t *testing.T) {
	t.Parallel()

	hub := reachability.NewHub()
	ch, cancel := hub.Subscribe()
	defer cancel()

	// Several notifications before the subscriber drains: exactly one
	// pending signal survives.
	hub.NotifyReachable()
	hub.NotifyReachable()
	hub.NotifyReachable()

	<-ch
	select {
	case <-ch:
		t.Fatal("notifications accumulated instead of coalescing")
	default:
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	t.Parallel()

	hub := reachability.NewHub()
	ch, cancel := hub.Subscribe()
	cancel()

	hub.NotifyReachable()

	select {
	case <-ch:
		t.Fatal("cancelled subscriber still received a notification")
	default:
	}
}

func TestNotifyWithoutSubscribersDoesNotBlock(t *testing.T) {
	t.Parallel()

	hub := reachability.NewHub()
	done := make(chan struct{})
	go func() {
		hub.NotifyReachable()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("NotifyReachable blocked with no subscribers")
	}
}

func TestMultipleSubscribersAllNotified(t *testing.T) {
	t.Parallel()

	hub := reachability.NewHub()
	var chans []<-chan struct{}
	for i := 0; i < 3; i++ {
		ch, cancel := hub.Subscribe()
		defer cancel()
		chans = append(chans, ch)
	}

	hub.NotifyReachable()

	for i, ch := range chans {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d never notified", i)
		}
	}
}
