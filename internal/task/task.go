// Package task models references to tasks stored as markdown files under
// .agency/tasks/. A task file is named "<id>-<slug>.md"; the id is a small
// positive integer and the slug a kebab-case name.
package task

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Ref identifies a task by numeric id and slug.
type Ref struct {
	ID   int    `json:"id"`
	Slug string `json:"slug"`
}

// String renders the canonical "<id>-<slug>" form.
func (r Ref) String() string {
	return fmt.Sprintf("%d-%s", r.ID, r.Slug)
}

// ParseFilename extracts a Ref from a task filename like "12-fix-login.md".
// Returns false for files that are not task files.
func ParseFilename(name string) (Ref, bool) {
	base, ok := strings.CutSuffix(name, ".md")
	if !ok {
		return Ref{}, false
	}
	idPart, slug, ok := strings.Cut(base, "-")
	if !ok || slug == "" {
		return Ref{}, false
	}
	id, err := strconv.Atoi(idPart)
	if err != nil || id <= 0 {
		return Ref{}, false
	}
	return Ref{ID: id, Slug: slug}, true
}

// List returns all task refs in tasksDir, ordered by id ascending.
// A missing directory yields an empty list, not an error.
func List(tasksDir string) ([]Ref, error) {
	entries, err := os.ReadDir(tasksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read tasks directory: %w", err)
	}

	var refs []Ref
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ref, ok := ParseFilename(e.Name()); ok {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

// Resolve finds the task with the given id.
func Resolve(tasksDir string, id int) (Ref, error) {
	refs, err := List(tasksDir)
	if err != nil {
		return Ref{}, err
	}
	for _, r := range refs {
		if r.ID == id {
			return r, nil
		}
	}
	return Ref{}, fmt.Errorf("no task with id %d in %s", id, tasksDir)
}

// ResolveIdent resolves a task from either a numeric id or a slug.
func ResolveIdent(tasksDir, ident string) (Ref, error) {
	refs, err := List(tasksDir)
	if err != nil {
		return Ref{}, err
	}
	if id, err := strconv.Atoi(ident); err == nil {
		for _, r := range refs {
			if r.ID == id {
				return r, nil
			}
		}
		return Ref{}, fmt.Errorf("no task with id %d", id)
	}
	for _, r := range refs {
		if r.Slug == ident {
			return r, nil
		}
	}
	return Ref{}, fmt.Errorf("no task matching %q", ident)
}
