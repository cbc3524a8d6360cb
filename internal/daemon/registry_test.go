package daemon

import (
	"testing"

	"github.com/agency-sh/agency/internal/transport"
)

type notifierCall struct {
	kind    string // "subscribe", "focus", "gone"
	project string
	tuiID   int
	task    *int
}

type recordingNotifier struct {
	calls []notifierCall
}

func (n *recordingNotifier) Subscribe(project string, tuiID int, current *int, peer transport.Peer) {
	n.calls = append(n.calls, notifierCall{kind: "subscribe", project: project, tuiID: tuiID, task: current})
}

func (n *recordingNotifier) FocusChanged(project string, tuiID int, task *int) {
	n.calls = append(n.calls, notifierCall{kind: "focus", project: project, tuiID: tuiID, task: task})
}

func (n *recordingNotifier) TargetGone(project string, tuiID int) {
	n.calls = append(n.calls, notifierCall{kind: "gone", project: project, tuiID: tuiID})
}

type nopPeer struct{ id string }

func (p nopPeer) ID() string                    { return p.id }
func (p nopPeer) Push(_ transport.Notification) {}

func intPtr(v int) *int { return &v }

func TestRegisterAllocatesLowestFreeID(t *testing.T) {
	reg := NewRegistry(nil)

	if id := reg.Register("proj", 100); id != 1 {
		t.Fatalf("first register = %d, want 1", id)
	}
	if id := reg.Register("proj", 200); id != 2 {
		t.Fatalf("second register = %d, want 2", id)
	}
	if id := reg.Register("proj", 300); id != 3 {
		t.Fatalf("third register = %d, want 3", id)
	}

	// Freeing 1 makes it the lowest free id again
	if !reg.Unregister("proj", 1) {
		t.Fatal("unregister of live record failed")
	}
	if id := reg.Register("proj", 400); id != 1 {
		t.Fatalf("register after freeing 1 = %d, want 1", id)
	}
	// The hole is filled; next allocation continues past the used range
	if id := reg.Register("proj", 500); id != 4 {
		t.Fatalf("register = %d, want 4", id)
	}
}

func TestRegisterSamePIDReturnsExistingID(t *testing.T) {
	reg := NewRegistry(nil)

	first := reg.Register("proj", 100)
	again := reg.Register("proj", 100)
	if again != first {
		t.Fatalf("re-register of pid 100 = %d, want %d", again, first)
	}
	if got := len(reg.List("proj")); got != 1 {
		t.Fatalf("record count = %d, want 1", got)
	}
}

func TestIDsAreScopedPerProject(t *testing.T) {
	reg := NewRegistry(nil)

	a := reg.Register("proj-a", 100)
	b := reg.Register("proj-b", 200)
	if a != 1 || b != 1 {
		t.Fatalf("ids = %d, %d, want 1, 1", a, b)
	}
}

func TestUnregisterAbsentRecord(t *testing.T) {
	reg := NewRegistry(nil)

	if reg.Unregister("proj", 7) {
		t.Fatal("unregister of absent record reported success")
	}
	reg.Register("proj", 100)
	if reg.Unregister("proj", 99) {
		t.Fatal("unregister of wrong id reported success")
	}
}

func TestSetFocusNotifies(t *testing.T) {
	n := &recordingNotifier{}
	reg := NewRegistry(n)

	id := reg.Register("proj", 100)
	if !reg.SetFocus("proj", id, intPtr(12)) {
		t.Fatal("SetFocus on live record failed")
	}

	if len(n.calls) != 1 {
		t.Fatalf("notifier calls = %d, want 1", len(n.calls))
	}
	call := n.calls[0]
	if call.kind != "focus" || call.project != "proj" || call.tuiID != id {
		t.Fatalf("unexpected call %+v", call)
	}
	if call.task == nil || *call.task != 12 {
		t.Fatalf("task = %v, want 12", call.task)
	}
}

func TestSetFocusOnGoneRecord(t *testing.T) {
	n := &recordingNotifier{}
	reg := NewRegistry(n)

	if reg.SetFocus("proj", 1, intPtr(5)) {
		t.Fatal("SetFocus on absent record reported success")
	}
	if len(n.calls) != 0 {
		t.Fatalf("notifier calls = %d, want 0", len(n.calls))
	}
}

func TestListOrderedByID(t *testing.T) {
	reg := NewRegistry(nil)

	reg.Register("proj", 300)
	reg.Register("proj", 100)
	reg.Register("proj", 200)
	reg.Unregister("proj", 2)
	reg.Register("proj", 400) // takes id 2 back

	infos := reg.List("proj")
	if len(infos) != 3 {
		t.Fatalf("list length = %d, want 3", len(infos))
	}
	for i, info := range infos {
		if info.TuiID != i+1 {
			t.Errorf("infos[%d].TuiID = %d, want %d", i, info.TuiID, i+1)
		}
	}
	if infos[1].PID != 400 {
		t.Errorf("reallocated id 2 has pid %d, want 400", infos[1].PID)
	}
}

func TestFollowDeliversInitialFocus(t *testing.T) {
	n := &recordingNotifier{}
	reg := NewRegistry(n)

	id := reg.Register("proj", 100)
	reg.SetFocus("proj", id, intPtr(3))

	if !reg.Follow("proj", id, nopPeer{id: "peer-1"}) {
		t.Fatal("Follow on live record failed")
	}

	last := n.calls[len(n.calls)-1]
	if last.kind != "subscribe" {
		t.Fatalf("last call = %q, want subscribe", last.kind)
	}
	if last.task == nil || *last.task != 3 {
		t.Fatalf("initial focus = %v, want 3", last.task)
	}
}

func TestFollowUnknownTarget(t *testing.T) {
	reg := NewRegistry(&recordingNotifier{})

	if reg.Follow("proj", 1, nopPeer{id: "peer-1"}) {
		t.Fatal("Follow on absent record reported success")
	}
}

func TestPurgeDeadFreesIDsAndNotifies(t *testing.T) {
	n := &recordingNotifier{}
	reg := NewRegistry(n)

	reg.Register("proj", 100)
	reg.Register("proj", 200)
	reg.Register("proj", 300)

	dead := map[int]bool{200: true}
	purged := reg.PurgeDead(func(pid int) bool { return !dead[pid] })
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}

	infos := reg.List("proj")
	if len(infos) != 2 {
		t.Fatalf("list length = %d, want 2", len(infos))
	}

	// Freed id is reallocated
	if id := reg.Register("proj", 400); id != 2 {
		t.Fatalf("register after purge = %d, want 2", id)
	}

	var gone int
	for _, c := range n.calls {
		if c.kind == "gone" {
			gone++
			if c.tuiID != 2 {
				t.Errorf("gone for id %d, want 2", c.tuiID)
			}
		}
	}
	if gone != 1 {
		t.Fatalf("gone notifications = %d, want 1", gone)
	}
}

func TestUnregisterNotifiesGone(t *testing.T) {
	n := &recordingNotifier{}
	reg := NewRegistry(n)

	id := reg.Register("proj", 100)
	reg.Unregister("proj", id)

	if len(n.calls) != 1 || n.calls[0].kind != "gone" {
		t.Fatalf("calls = %+v, want single gone", n.calls)
	}
}
