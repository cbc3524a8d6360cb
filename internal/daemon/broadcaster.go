package daemon

import (
	"fmt"
	"sync"

	"github.com/agency-sh/agency/internal/transport"
)

// Push notification methods delivered to followers.
const (
	MethodFocus = "notification.focus"
	MethodGone  = "notification.gone"
)

// FocusParams is the payload of a notification.focus push.
type FocusParams struct {
	Project string `json:"project"`
	TuiID   int    `json:"tui_id"`
	TaskID  *int   `json:"task_id,omitempty"`
}

// GoneParams is the payload of a notification.gone push.
type GoneParams struct {
	Project string `json:"project"`
	TuiID   int    `json:"tui_id"`
}

type subKey struct {
	project string
	tuiID   int
}

// Broadcaster owns the follow-subscription table: which connected peer is
// watching which (project, tui_id). It implements FocusNotifier; delivery
// goes through each peer's non-blocking outgoing queue, so a stalled
// follower never slows a registry mutation or another client.
type Broadcaster struct {
	mu     sync.Mutex
	bySub  map[subKey]map[string]transport.Peer // key -> peer id -> peer
	byPeer map[string]subKey                    // at most one subscription per peer
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		bySub:  make(map[subKey]map[string]transport.Peer),
		byPeer: make(map[string]subKey),
	}
}

// Subscribe binds peer to (project, tuiID), replacing any previous
// subscription held by the same peer, and pushes the current focus value.
func (b *Broadcaster) Subscribe(project string, tuiID int, current *int, peer transport.Peer) {
	key := subKey{project, tuiID}

	b.mu.Lock()
	if prev, ok := b.byPeer[peer.ID()]; ok {
		b.removeLocked(prev, peer.ID())
	}
	peers := b.bySub[key]
	if peers == nil {
		peers = make(map[string]transport.Peer)
		b.bySub[key] = peers
	}
	peers[peer.ID()] = peer
	b.byPeer[peer.ID()] = key
	b.mu.Unlock()

	peer.Push(focusNotification(project, tuiID, current))
}

// FocusChanged pushes the new focus value to every follower of the TUI.
func (b *Broadcaster) FocusChanged(project string, tuiID int, task *int) {
	key := subKey{project, tuiID}
	n := focusNotification(project, tuiID, task)

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, peer := range b.bySub[key] {
		peer.Push(n)
	}
}

// TargetGone tells every follower that the record was destroyed, then
// drops their subscriptions: there is nothing left to follow.
func (b *Broadcaster) TargetGone(project string, tuiID int) {
	key := subKey{project, tuiID}
	n := transport.Notification{
		Method: MethodGone,
		Params: GoneParams{Project: project, TuiID: tuiID},
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, peer := range b.bySub[key] {
		peer.Push(n)
		delete(b.byPeer, id)
	}
	delete(b.bySub, key)
}

// DropPeer removes any subscription held by a disconnected peer.
func (b *Broadcaster) DropPeer(peerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if key, ok := b.byPeer[peerID]; ok {
		b.removeLocked(key, peerID)
	}
}

func (b *Broadcaster) removeLocked(key subKey, peerID string) {
	if peers := b.bySub[key]; peers != nil {
		delete(peers, peerID)
		if len(peers) == 0 {
			delete(b.bySub, key)
		}
	}
	delete(b.byPeer, peerID)
}

// focusNotification builds a coalescible focus push. The coalesce key is
// per followed TUI: rapid focus changes collapse to the latest value in a
// slow client's queue without ever reordering past a gone notification.
func focusNotification(project string, tuiID int, task *int) transport.Notification {
	return transport.Notification{
		Method:   MethodFocus,
		Params:   FocusParams{Project: project, TuiID: tuiID, TaskID: task},
		Coalesce: fmt.Sprintf("focus:%s/%d", project, tuiID),
	}
}
