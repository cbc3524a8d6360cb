package daemon

import (
	"sort"
	"sync"
	"time"

	"github.com/agency-sh/agency/internal/transport"
)

// TuiRecord is one registered TUI instance within a project.
type TuiRecord struct {
	TuiID       int
	PID         int
	LastSeen    time.Time
	FocusedTask *int // nil when no task is focused
}

// TuiInfo is the externally visible snapshot of a record.
type TuiInfo struct {
	TuiID       int  `json:"tui_id"`
	PID         int  `json:"pid"`
	FocusedTask *int `json:"focused_task_id,omitempty"`
}

// FocusNotifier receives registry mutations that matter to followers.
// All methods are invoked while the registry lock is held, which gives
// followers a total order over mutations; implementations must only
// enqueue and never block.
type FocusNotifier interface {
	// Subscribe binds a peer to (project, tuiID) and delivers the current
	// focus value as the subscription's first notification.
	Subscribe(project string, tuiID int, current *int, peer transport.Peer)
	// FocusChanged announces a new focus value for a followed TUI.
	FocusChanged(project string, tuiID int, task *int)
	// TargetGone announces that a followed record was destroyed.
	TargetGone(project string, tuiID int)
}

// Registry tracks registered TUIs per project and owns id allocation.
// All state is process-lifetime only; a daemon restart starts empty.
type Registry struct {
	mu       sync.Mutex
	projects map[string]map[int]*TuiRecord
	notifier FocusNotifier
	now      func() time.Time
}

// NewRegistry creates an empty registry. The notifier may be nil when no
// follower delivery is wired (tests).
func NewRegistry(notifier FocusNotifier) *Registry {
	return &Registry{
		projects: make(map[string]map[int]*TuiRecord),
		notifier: notifier,
		now:      time.Now,
	}
}

// Register allocates the lowest free positive id for the project and
// creates a record with no focused task. Registering a pid that already
// owns a live record returns that record's id instead of allocating.
func (r *Registry) Register(project string, pid int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	recs := r.projects[project]
	if recs == nil {
		recs = make(map[int]*TuiRecord)
		r.projects[project] = recs
	}

	for id, rec := range recs {
		if rec.PID == pid {
			rec.LastSeen = r.now()
			return id
		}
	}

	id := 1
	for {
		if _, taken := recs[id]; !taken {
			break
		}
		id++
	}
	recs[id] = &TuiRecord{TuiID: id, PID: pid, LastSeen: r.now()}
	return id
}

// Unregister removes the record if present. Removing an absent record is
// not an error: the caller may be racing its own exit.
func (r *Registry) Unregister(project string, tuiID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyLocked(project, tuiID)
}

// SetFocus updates the focused task and last-seen time on the matching
// record and notifies any follower. No-op when the record is gone.
func (r *Registry) SetFocus(project string, tuiID int, task *int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.projects[project][tuiID]
	if rec == nil {
		return false
	}
	rec.FocusedTask = task
	rec.LastSeen = r.now()
	if r.notifier != nil {
		r.notifier.FocusChanged(project, tuiID, task)
	}
	return true
}

// List returns a snapshot of the project's records ordered by tui_id.
func (r *Registry) List(project string) []TuiInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	recs := r.projects[project]
	out := make([]TuiInfo, 0, len(recs))
	for _, rec := range recs {
		out = append(out, TuiInfo{TuiID: rec.TuiID, PID: rec.PID, FocusedTask: rec.FocusedTask})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TuiID < out[j].TuiID })
	return out
}

// Follow binds peer to the record's focus stream. The initial focus value
// is delivered under the registry lock, so no mutation can slip between
// the subscription and its first notification.
func (r *Registry) Follow(project string, tuiID int, peer transport.Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.projects[project][tuiID]
	if rec == nil {
		return false
	}
	if r.notifier != nil {
		r.notifier.Subscribe(project, tuiID, rec.FocusedTask, peer)
	}
	return true
}

// PurgeDead removes every record whose owning process no longer runs,
// freeing its id and notifying any follower. alive is injectable so the
// sweep is testable without real processes.
func (r *Registry) PurgeDead(alive func(pid int) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	purged := 0
	for project, recs := range r.projects {
		for id, rec := range recs {
			if !alive(rec.PID) {
				if r.destroyLocked(project, id) {
					purged++
				}
			}
		}
	}
	return purged
}

// destroyLocked is the single destructive path shared by explicit
// unregistration and the liveness sweep. Idempotent: destroying an absent
// record reports false and has no side effects.
func (r *Registry) destroyLocked(project string, tuiID int) bool {
	recs := r.projects[project]
	if _, ok := recs[tuiID]; !ok {
		return false
	}
	delete(recs, tuiID)
	if len(recs) == 0 {
		delete(r.projects, project)
	}
	if r.notifier != nil {
		r.notifier.TargetGone(project, tuiID)
	}
	return true
}
