package tmux

import (
	"errors"
	"strings"
	"testing"

	"github.com/agency-sh/agency/internal/task"
)

// fakeRunner records tmux invocations and returns canned output per
// subcommand.
type fakeRunner struct {
	calls  [][]string
	output map[string][]byte
	errs   map[string]error
}

func (f *fakeRunner) run(args ...string) ([]byte, error) {
	f.calls = append(f.calls, args)
	if err, ok := f.errs[args[0]]; ok {
		return nil, err
	}
	return f.output[args[0]], nil
}

func newTestBackend(f *fakeRunner) *Backend {
	b := NewBackend("agency", "/repo")
	b.run = f.run
	return b
}

func TestSessionNameRoundTrip(t *testing.T) {
	b := NewBackend("agency", "/repo")
	ref := task.Ref{ID: 12, Slug: "fix-login"}

	name := b.SessionName(ref)
	if name != "agency-12-fix-login" {
		t.Errorf("SessionName = %q", name)
	}

	got, ok := b.ParseSessionName(name)
	if !ok || got != ref {
		t.Errorf("ParseSessionName(%q) = %v, %v", name, got, ok)
	}

	if _, ok := b.ParseSessionName("other-1-x"); ok {
		t.Error("parsed a session with a foreign prefix")
	}
}

func TestSessionExists(t *testing.T) {
	f := &fakeRunner{}
	b := newTestBackend(f)

	ok, err := b.SessionExists(task.Ref{ID: 1, Slug: "alpha"})
	if err != nil || !ok {
		t.Fatalf("SessionExists = %v, %v; want true", ok, err)
	}
	want := []string{"has-session", "-t", "=agency-1-alpha"}
	if len(f.calls) != 1 || strings.Join(f.calls[0], " ") != strings.Join(want, " ") {
		t.Errorf("tmux call = %v, want %v", f.calls, want)
	}
}

func TestSessionExistsWhenTmuxMissing(t *testing.T) {
	f := &fakeRunner{errs: map[string]error{"has-session": errors.New("exec: \"tmux\": executable file not found in $PATH")}}
	b := newTestBackend(f)

	// Unknown error kinds propagate; the caller decides how to surface them.
	if _, err := b.SessionExists(task.Ref{ID: 1, Slug: "alpha"}); err == nil {
		t.Fatal("expected error for unexpected failure")
	}
}

func TestStartTagsProjectRoot(t *testing.T) {
	f := &fakeRunner{}
	b := newTestBackend(f)

	if err := b.Start(task.Ref{ID: 2, Slug: "beta"}, "/repo", []string{"/bin/sh"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(f.calls) < 2 {
		t.Fatalf("expected new-session then set-option, got %v", f.calls)
	}
	if f.calls[0][0] != "new-session" {
		t.Errorf("first call = %v", f.calls[0])
	}
	joined := strings.Join(f.calls[1], " ")
	if !strings.Contains(joined, "@agency_root /repo") {
		t.Errorf("session not tagged with project root: %v", f.calls[1])
	}
}

func TestListSessionsFiltersByProject(t *testing.T) {
	out := "agency-1-alpha\x1f/repo\x1f1\n" +
		"agency-2-beta\x1f/other\x1f0\n" +
		"personal\x1f/repo\x1f0\n" +
		"agency-3-gamma\x1f/repo\x1f0\n"
	f := &fakeRunner{output: map[string][]byte{"list-sessions": []byte(out)}}
	b := newTestBackend(f)

	sessions, err := b.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2: %v", len(sessions), sessions)
	}
	if sessions[0].Task != (task.Ref{ID: 1, Slug: "alpha"}) || sessions[0].Attached != 1 {
		t.Errorf("sessions[0] = %+v", sessions[0])
	}
	if sessions[1].Task != (task.Ref{ID: 3, Slug: "gamma"}) {
		t.Errorf("sessions[1] = %+v", sessions[1])
	}
}

func TestAttachCommand(t *testing.T) {
	b := NewBackend("agency", "/repo")
	cmd := b.AttachCommand(task.Ref{ID: 7, Slug: "delta"})
	joined := strings.Join(cmd.Args, " ")
	if !strings.Contains(joined, "attach-session -t =agency-7-delta") {
		t.Errorf("attach args = %v", cmd.Args)
	}
}
