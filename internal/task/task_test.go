package task

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseFilename(t *testing.T) {
	cases := []struct {
		name string
		want Ref
		ok   bool
	}{
		{"1-alpha.md", Ref{1, "alpha"}, true},
		{"12-fix-login.md", Ref{12, "fix-login"}, true},
		{"notes.md", Ref{}, false},
		{"0-zero.md", Ref{}, false},
		{"-3-neg.md", Ref{}, false},
		{"7-.md", Ref{}, false},
		{"7-slug.txt", Ref{}, false},
	}
	for _, c := range cases {
		got, ok := ParseFilename(c.name)
		if ok != c.ok || got != c.want {
			t.Errorf("ParseFilename(%q) = %v, %v; want %v, %v", c.name, got, ok, c.want, c.ok)
		}
	}
}

func writeTasks(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("# task\n"), 0600); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}
	return dir
}

func TestListOrderedByID(t *testing.T) {
	dir := writeTasks(t, "3-three.md", "1-one.md", "README.md", "2-two.md")
	refs, err := List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []Ref{{1, "one"}, {2, "two"}, {3, "three"}}
	if len(refs) != len(want) {
		t.Fatalf("List returned %d refs, want %d", len(refs), len(want))
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("refs[%d] = %v, want %v", i, refs[i], want[i])
		}
	}
}

func TestListMissingDir(t *testing.T) {
	refs, err := List(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("List on missing dir: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("expected no refs, got %v", refs)
	}
}

func TestResolve(t *testing.T) {
	dir := writeTasks(t, "1-alpha.md", "2-beta.md")

	ref, err := Resolve(dir, 2)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ref.Slug != "beta" {
		t.Errorf("Resolve(2).Slug = %q, want beta", ref.Slug)
	}

	if _, err := Resolve(dir, 9); err == nil {
		t.Error("expected error for unknown id")
	}
}

func TestResolveIdent(t *testing.T) {
	dir := writeTasks(t, "1-alpha.md", "2-beta.md")

	if ref, err := ResolveIdent(dir, "beta"); err != nil || ref.ID != 2 {
		t.Errorf("ResolveIdent(beta) = %v, %v", ref, err)
	}
	if ref, err := ResolveIdent(dir, "1"); err != nil || ref.Slug != "alpha" {
		t.Errorf("ResolveIdent(1) = %v, %v", ref, err)
	}
	if _, err := ResolveIdent(dir, "gamma"); err == nil {
		t.Error("expected error for unknown slug")
	}
}
