package events

import (
	"testing"

	"github.com/veraxlabs/verax/types"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := NewEventBus()

	id, ch := bus.Subscribe()
	if !bus.HasSubscriber(id) {
		t.Fatal("subscriber not registered")
	}
	if bus.GetTotalSubscriptions() != 1 {
		t.Fatalf("subscriptions %d, want 1", bus.GetTotalSubscriptions())
	}

	hash := types.Hash{0x01}
	bus.Publish(NewBlockCommitted(hash, 7, 3, true))

	select {
	case ev := <-ch:
		committed, ok := ev.(*BlockCommitted)
		if !ok {
			t.Fatalf("wrong event type %s", ev.Type())
		}
		if committed.Subject() != hash || committed.Height() != 7 || committed.TxCount() != 3 || !committed.OnBestChain() {
			t.Fatal("event fields lost in transit")
		}
	default:
		t.Fatal("event not delivered")
	}
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewEventBus()

	_, ch1 := bus.Subscribe()
	_, ch2 := bus.Subscribe()

	bus.Publish(NewBlockFinalized(types.Hash{0x02}, 9))

	for i, ch := range []chan EngineEvent{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Type() != EventBlockFinalized {
				t.Fatalf("subscriber %d: type %s", i, ev.Type())
			}
		default:
			t.Fatalf("subscriber %d: nothing delivered", i)
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus()

	id, ch := bus.Subscribe()
	if !bus.Unsubscribe(id) {
		t.Fatal("unsubscribe reported failure")
	}
	if bus.HasSubscriber(id) {
		t.Fatal("subscriber still registered")
	}
	if _, open := <-ch; open {
		t.Fatal("channel not closed on unsubscribe")
	}
	if bus.Unsubscribe(id) {
		t.Fatal("second unsubscribe should report failure")
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	bus := NewEventBus()
	_, ch := bus.Subscribe()

	// Fill the buffer and one more: delivery is best effort, the publisher
	// must not block.
	for i := 0; i < cap(ch)+10; i++ {
		bus.Publish(NewTransactionAccepted(types.Hash{byte(i)}))
	}
	if len(ch) != cap(ch) {
		t.Fatalf("buffered %d, want full buffer %d", len(ch), cap(ch))
	}
}

func TestEventSubjects(t *testing.T) {
	oldTip := types.Hash{0x0a}
	newTip := types.Hash{0x0b}

	reorg := NewChainReorged(oldTip, newTip, 42)
	if reorg.Subject() != newTip || reorg.OldTip() != oldTip || reorg.NewHeight() != 42 {
		t.Fatal("reorg accessors wrong")
	}

	rej := NewBlockRejected(types.Hash{0x0c}, "bad_coinbase", "coinbase overpays")
	if rej.Code() != "bad_coinbase" || rej.Reason() != "coinbase overpays" {
		t.Fatal("rejection accessors wrong")
	}
	if rej.Timestamp().IsZero() {
		t.Fatal("timestamp not set")
	}
}
