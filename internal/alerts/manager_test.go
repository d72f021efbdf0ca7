package alerts

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeDispatcher struct {
	fail bool
	sent []Channel
}

func (d *fakeDispatcher) Dispatch(channel Channel, alert *Alert) error {
	if d.fail {
		return errors.New("dispatch failed")
	}
	d.sent = append(d.sent, channel)
	return nil
}

func TestCreateAndTrigger(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	m := NewManager(zap.NewNop(), dispatcher)

	alert := m.Create(CreateRequest{
		Type: TypePrice, Priority: PriorityHigh, Title: "BTC spike",
		Channels: []Channel{ChannelInApp, ChannelEmail}, Symbol: "BTC-USD",
	})

	triggered, err := m.Trigger(alert.ID)
	if err != nil || !triggered {
		t.Fatalf("expected trigger to succeed, got triggered=%v err=%v", triggered, err)
	}

	got := m.Get(alert.ID)
	if got.Status != StatusSent {
		t.Fatalf("expected status sent, got %s", got.Status)
	}
	if len(dispatcher.sent) != 2 {
		t.Fatalf("expected dispatch to both channels, got %v", dispatcher.sent)
	}
}

func TestTriggerIsThrottled(t *testing.T) {
	m := NewManager(zap.NewNop(), &fakeDispatcher{})
	alert := m.Create(CreateRequest{Type: TypeRisk, Priority: PriorityCritical, Title: "drawdown", ThrottleMinutes: 60})

	first, _ := m.Trigger(alert.ID)
	second, _ := m.Trigger(alert.ID)

	if !first {
		t.Fatalf("expected first trigger to succeed")
	}
	if second {
		t.Fatalf("expected second trigger to be throttled")
	}
}

func TestTriggerRespectsMaxTriggers(t *testing.T) {
	m := NewManager(zap.NewNop(), &fakeDispatcher{})
	alert := m.Create(CreateRequest{Type: TypeHealth, Priority: PriorityLow, Title: "check", ThrottleMinutes: -1, MaxTriggers: 1})

	// Force immediate re-trigger by backdating via direct manipulation
	// is not exposed; validate the single allowed trigger then the cap.
	first, _ := m.Trigger(alert.ID)
	if !first {
		t.Fatalf("expected first trigger to succeed")
	}
	second, _ := m.Trigger(alert.ID)
	if second {
		t.Fatalf("expected trigger to be rejected once max triggers reached")
	}
}

func TestSuppressBlocksTrigger(t *testing.T) {
	m := NewManager(zap.NewNop(), &fakeDispatcher{})
	m.Suppress("ETH-USD", time.Now().Add(time.Hour))

	alert := m.Create(CreateRequest{Type: TypePrice, Priority: PriorityMedium, Title: "eth move", Symbol: "ETH-USD"})
	triggered, _ := m.Trigger(alert.ID)
	if triggered {
		t.Fatalf("expected suppressed symbol to block trigger")
	}
	if got := m.Get(alert.ID); got.Status != StatusSuppressed {
		t.Fatalf("expected status suppressed, got %s", got.Status)
	}
}

func TestAcknowledgeAndResolve(t *testing.T) {
	m := NewManager(zap.NewNop(), &fakeDispatcher{})
	alert := m.Create(CreateRequest{Type: TypeMilestone, Priority: PriorityInfo, Title: "milestone"})

	if !m.Acknowledge(alert.ID) {
		t.Fatalf("expected acknowledge to succeed")
	}
	if got := m.Get(alert.ID); got.Status != StatusAcknowledged {
		t.Fatalf("expected acknowledged status, got %s", got.Status)
	}

	if !m.Resolve(alert.ID) {
		t.Fatalf("expected resolve to succeed")
	}
	if got := m.Get(alert.ID); got.Status != StatusResolved {
		t.Fatalf("expected resolved status, got %s", got.Status)
	}
}

func TestDispatchFailureDoesNotMarkSent(t *testing.T) {
	m := NewManager(zap.NewNop(), &fakeDispatcher{fail: true})
	alert := m.Create(CreateRequest{Type: TypePrice, Priority: PriorityHigh, Title: "fail case", Channels: []Channel{ChannelWebhook}})

	triggered, err := m.Trigger(alert.ID)
	if !triggered {
		t.Fatalf("expected triggered true even if dispatch fails")
	}
	if err == nil {
		t.Fatalf("expected dispatch error to propagate")
	}
	if got := m.Get(alert.ID); got.Status != StatusTriggered {
		t.Fatalf("expected status to remain triggered when dispatch fails, got %s", got.Status)
	}
}
