package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-face/core/events"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPublishDeliversInRegistrationOrder(t *testing.T) {
	b := New()
	order := []string{}
	b.Subscribe(events.KindTextCommand, func(events.Event) { order = append(order, "first") })
	b.Subscribe(events.KindTextCommand, func(events.Event) { order = append(order, "second") })
	b.Subscribe(events.KindHistoryAdd, func(events.Event) { order = append(order, "other kind") })
	b.SubscribeAll(func(events.Event) { order = append(order, "observer") })

	b.Publish(events.NewTextCommand("hello"))

	want := []string{"first", "second", "observer"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestSubscribeDuringPublishTakesEffectOnNextPublish(t *testing.T) {
	b := New()
	late := 0
	b.Subscribe(events.KindTextCommand, func(events.Event) {
		b.Subscribe(events.KindTextCommand, func(events.Event) { late++ })
	})

	b.Publish(events.NewTextCommand("one"))
	if late != 0 {
		t.Fatalf("expected subscriber added mid-dispatch to miss current event, got %d calls", late)
	}

	b.Publish(events.NewTextCommand("two"))
	if late != 1 {
		t.Fatalf("expected subscriber added mid-dispatch to see next event once, got %d calls", late)
	}
}

func TestUnsubscribeDuringPublishTakesEffectImmediately(t *testing.T) {
	b := New()
	var second *Subscription
	firstCalls, secondCalls := 0, 0
	var first *Subscription
	first = b.Subscribe(events.KindTextCommand, func(events.Event) {
		firstCalls++
		b.Unsubscribe(second)
		b.Unsubscribe(first)
	})
	second = b.Subscribe(events.KindTextCommand, func(events.Event) { secondCalls++ })

	b.Publish(events.NewTextCommand("one"))
	b.Publish(events.NewTextCommand("two"))

	if firstCalls != 1 {
		t.Fatalf("expected first subscriber to run once, got %d", firstCalls)
	}
	if secondCalls != 0 {
		t.Fatalf("expected removed subscriber to be skipped, got %d calls", secondCalls)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New()
	sub := b.Subscribe(events.KindTextCommand, func(events.Event) {})

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	b.Unsubscribe(nil)

	b.Publish(events.NewTextCommand("x"))
}

func TestPanickingSubscriberDoesNotStopDelivery(t *testing.T) {
	var reported error
	b := New(WithHandlerErrorHook(func(_ events.Event, err error) { reported = err }))
	delivered := false
	b.Subscribe(events.KindTextCommand, func(events.Event) { panic("boom") })
	b.Subscribe(events.KindTextCommand, func(events.Event) { delivered = true })

	b.Publish(events.NewTextCommand("x"))

	if !delivered {
		t.Fatalf("expected remaining subscriber to receive event")
	}
	if reported == nil {
		t.Fatalf("expected panic to be reported")
	}
}

func TestNoReplayForLateSubscribers(t *testing.T) {
	b := New()
	b.Publish(events.NewTextCommand("early"))

	calls := 0
	b.Subscribe(events.KindTextCommand, func(events.Event) { calls++ })
	if calls != 0 {
		t.Fatalf("expected no replay, got %d calls", calls)
	}
}

func TestDiagnosticsMirrorEveryEvent(t *testing.T) {
	mirrored := []events.Kind{}
	b := New(WithDiagnostics(func(ev events.Event) { mirrored = append(mirrored, ev.Kind()) }))

	b.Publish(events.NewTextCommand("x"))
	b.Publish(events.NewPlaybackStarted("p"))

	if len(mirrored) != 2 || mirrored[0] != events.KindTextCommand || mirrored[1] != events.KindPlaybackStarted {
		t.Fatalf("expected both events mirrored, got %v", mirrored)
	}
}

func TestDrainRunsWorkQueuedWhileDraining(t *testing.T) {
	b := New()
	got := []string{}
	b.Subscribe(events.KindTextCommand, func(ev events.Event) {
		text := ev.(events.TextCommand).Text
		got = append(got, text)
		if text == "first" {
			b.Post(events.NewTextCommand("second"))
		}
	})

	b.Post(events.NewTextCommand("first"))
	if len(got) != 0 {
		t.Fatalf("expected Post not to deliver synchronously")
	}

	if ran := b.Drain(); ran != 2 {
		t.Fatalf("expected 2 queued items, ran %d", ran)
	}
	if len(got) != 2 || got[1] != "second" {
		t.Fatalf("expected both events in order, got %v", got)
	}
}

func TestRunSerializesPostsFromManyGoroutines(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())

	const posts = 200
	received := 0
	done := make(chan struct{})
	b.Subscribe(events.KindTextCommand, func(events.Event) {
		received++
		if received == posts {
			close(done)
		}
	})

	runDone := make(chan error, 1)
	go func() { runDone <- b.Run(ctx) }()

	var wg sync.WaitGroup
	for range posts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Post(events.NewTextCommand("x"))
		}()
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected %d deliveries, got %d", posts, received)
	}

	cancel()
	if err := <-runDone; err != context.Canceled {
		t.Fatalf("expected Run to stop with context.Canceled, got %v", err)
	}
}
