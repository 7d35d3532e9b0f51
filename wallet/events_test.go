package wallet

import (
	"sync"
	"testing"
	"time"

	"satspay/breez"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	d := NewDispatcher(nil)
	defer d.Close()

	var mu sync.Mutex
	var seen []breez.EventType
	d.Subscribe(func(ev breez.Event) {
		mu.Lock()
		seen = append(seen, ev.Type)
		mu.Unlock()
	})

	want := []breez.EventType{breez.EventSynced, breez.EventPaymentPending, breez.EventPaymentSucceeded}
	for _, typ := range want {
		d.Publish(breez.Event{Type: typ})
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == len(want)
	})
	mu.Lock()
	defer mu.Unlock()
	for i, typ := range want {
		if seen[i] != typ {
			t.Fatalf("event %d: got %s, want %s", i, seen[i], typ)
		}
	}
}

func TestDispatcherUnsubscribeStopsDelivery(t *testing.T) {
	d := NewDispatcher(nil)
	defer d.Close()

	var mu sync.Mutex
	var count int
	unsubscribe := d.Subscribe(func(breez.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	d.Publish(breez.Event{Type: breez.EventSynced})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})

	unsubscribe()
	unsubscribe() // safe to call twice

	var after int
	d.Subscribe(func(breez.Event) {
		mu.Lock()
		after++
		mu.Unlock()
	})
	d.Publish(breez.Event{Type: breez.EventSynced})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return after == 1
	})
	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("unsubscribed listener still invoked: %d", count)
	}
}

func TestDispatcherIsolatesPanickingListener(t *testing.T) {
	d := NewDispatcher(nil)
	defer d.Close()

	d.Subscribe(func(breez.Event) { panic("boom") })

	var mu sync.Mutex
	var count int
	d.Subscribe(func(breez.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	d.Publish(breez.Event{Type: breez.EventSynced})
	d.Publish(breez.Event{Type: breez.EventSynced})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 2
	})
}

func TestDispatcherPublishAfterCloseDrops(t *testing.T) {
	d := NewDispatcher(nil)
	var mu sync.Mutex
	var count int
	d.Subscribe(func(breez.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	d.Close()
	d.Publish(breez.Event{Type: breez.EventSynced})
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Fatalf("events delivered after close: %d", count)
	}
}

func TestRequiresRefresh(t *testing.T) {
	cases := []struct {
		name string
		ev   breez.Event
		want bool
	}{
		{"payment succeeded", breez.Event{Type: breez.EventPaymentSucceeded}, true},
		{"payment pending", breez.Event{Type: breez.EventPaymentPending}, true},
		{"payment failed", breez.Event{Type: breez.EventPaymentFailed}, true},
		{"synced", breez.Event{Type: breez.EventSynced}, true},
		{"claimed deposits", breez.Event{Type: breez.EventClaimedDeposits}, true},
		{"data synced with records", breez.Event{Type: breez.EventDataSynced, DidPullNewRecords: true}, true},
		{"data synced without records", breez.Event{Type: breez.EventDataSynced}, false},
		{"unclaimed deposits", breez.Event{Type: breez.EventUnclaimedDeposits}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RequiresRefresh(tc.ev); got != tc.want {
				t.Fatalf("RequiresRefresh(%s): got %v, want %v", tc.ev.Type, got, tc.want)
			}
		})
	}
}
