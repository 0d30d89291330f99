package session

import (
	"sync/atomic"
	"time"
)

// EventType names a vault lifecycle change.
type EventType string

const (
	EventVaultCreated           EventType = "vault.created"
	EventVaultUnlocked          EventType = "vault.unlocked"
	EventVaultLocked            EventType = "vault.locked"
	EventVaultRenamed           EventType = "vault.renamed"
	EventVaultDeleted           EventType = "vault.deleted"
	EventVaultChangedExternally EventType = "vault.changed_externally"
	EventAccountAdded           EventType = "account.added"
	EventAccountUpdated         EventType = "account.updated"
	EventAccountDeleted         EventType = "account.deleted"
)

// Event is delivered to subscribers. It carries ids only, never account fields.
type Event struct {
	Type      EventType `json:"type"`
	VaultID   string    `json:"vault_id"`
	AccountID string    `json:"account_id,omitempty"`
	Time      time.Time `json:"time"`
}

type subscriber struct {
	ch      chan Event
	vaultID string
}

// broker fans events out to subscribers.
//
// A single run goroutine owns the subscriber set. publishCh is unbuffered, so
// an event is fanned out before any later subscribe is registered and a new
// subscriber only sees events published after it subscribed. Sends to a
// subscriber never block; a slow subscriber misses events.
type broker struct {
	subscribeCh   chan *subscriber
	unsubscribeCh chan *subscriber
	publishCh     chan Event

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

func newBroker() *broker {
	b := &broker{
		subscribeCh:   make(chan *subscriber),
		unsubscribeCh: make(chan *subscriber),
		publishCh:     make(chan Event),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *broker) run() {
	defer close(b.stopped)

	subs := make(map[*subscriber]struct{})

	for {
		select {
		case <-b.stopCh:
			for s := range subs {
				close(s.ch)
			}
			return

		case s := <-b.subscribeCh:
			subs[s] = struct{}{}

		case s := <-b.unsubscribeCh:
			if _, ok := subs[s]; ok {
				delete(subs, s)
				close(s.ch)
			}

		case ev := <-b.publishCh:
			for s := range subs {
				if s.vaultID != "" && s.vaultID != ev.VaultID {
					continue
				}
				select {
				case s.ch <- ev:
				default:
				}
			}
		}
	}
}

// subscribe registers a subscriber for vaultID, or for every vault when
// vaultID is empty. The returned func unsubscribes and closes the channel.
func (b *broker) subscribe(vaultID string) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, 64), vaultID: vaultID}
	if b.closed.Load() {
		close(s.ch)
		return s.ch, func() {}
	}

	select {
	case b.subscribeCh <- s:
	case <-b.stopped:
		close(s.ch)
		return s.ch, func() {}
	}

	var once atomic.Bool
	cancel := func() {
		if !once.CompareAndSwap(false, true) || b.closed.Load() {
			return
		}
		select {
		case b.unsubscribeCh <- s:
		case <-b.stopped:
		}
	}
	return s.ch, cancel
}

func (b *broker) publish(ev Event) {
	if b.closed.Load() {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	select {
	case b.publishCh <- ev:
	case <-b.stopped:
	}
}

func (b *broker) close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}
