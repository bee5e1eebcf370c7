package events_test

import (
	"testing"

	"github.com/rs/zerolog"

	"wcsign/internal/events"
)

func TestFeed_BroadcastAndCancel(t *testing.T) {
	f := events.NewFeed[int]("test", zerolog.Nop())
	a, cancelA := f.Subscribe()
	b, cancelB := f.Subscribe()
	defer cancelB()

	if n := f.Send(7); n != 2 {
		t.Fatalf("delivered to %d, want 2", n)
	}
	if <-a != 7 || <-b != 7 {
		t.Fatal("subscribers did not receive the event")
	}

	cancelA()
	cancelA()
	if _, ok := <-a; ok {
		t.Fatal("cancelled channel still open")
	}
	if n := f.Send(8); n != 1 {
		t.Fatalf("delivered to %d after cancel, want 1", n)
	}
}

func TestFeed_FullSubscriberDoesNotBlock(t *testing.T) {
	f := events.NewFeed[int]("test", zerolog.Nop())
	_, cancel := f.Subscribe()
	defer cancel()
	for i := 0; i < events.DefaultBuffer+10; i++ {
		f.Send(i)
	}
	if n := f.Send(-1); n != 0 {
		t.Fatal("full subscriber accepted event")
	}
}

func TestFeed_OnSubscribeReplaysToNewcomerOnly(t *testing.T) {
	f := events.NewFeed[string]("test", zerolog.Nop())
	old, cancelOld := f.Subscribe()
	defer cancelOld()

	f.OnSubscribe(func(send func(string)) { send("pending") })
	fresh, cancelFresh := f.Subscribe()
	defer cancelFresh()

	if got := <-fresh; got != "pending" {
		t.Fatalf("replay = %q", got)
	}
	select {
	case v := <-old:
		t.Fatalf("existing subscriber got replay %q", v)
	default:
	}
	if !f.HasSubscribers() {
		t.Fatal("HasSubscribers = false")
	}
}
