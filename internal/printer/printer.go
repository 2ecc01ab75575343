// Package printer renders CLI-facing tables on top of
// github.com/aquasecurity/table for the release/dependency/repository
// listings the CLI needs.
package printer

import (
	"fmt"
	"io"
	"sort"

	"github.com/aquasecurity/table"

	"github.com/hashmap-kz/shipctl/internal/dependency"
	"github.com/hashmap-kz/shipctl/internal/release"
	"github.com/hashmap-kz/shipctl/internal/repo"
)

func newTable(w io.Writer, headers ...string) *table.Table {
	t := table.New(w)
	t.SetHeaders(headers...)
	return t
}

// RenderReleaseHistory renders a release's revision history, newest first.
func RenderReleaseHistory(w io.Writer, summaries []release.Summary) {
	t := newTable(w, "REVISION", "STATE", "UPDATED", "DESCRIPTION")
	sorted := append([]release.Summary(nil), summaries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Revision > sorted[j].Revision })
	for _, s := range sorted {
		t.AddRow(fmt.Sprintf("%d", s.Revision), string(s.State), s.UpdatedAt.Format("2006-01-02 15:04:05"), s.Description)
	}
	t.Render()
}

// RenderReleaseList renders every release's latest summary, one row each.
func RenderReleaseList(w io.Writer, summaries []release.Summary) {
	t := newTable(w, "NAMESPACE", "NAME", "REVISION", "STATE", "UPDATED")
	for _, s := range summaries {
		t.AddRow(s.Namespace, s.Name, fmt.Sprintf("%d", s.Revision), string(s.State), s.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	t.Render()
}

// RenderDependencyGraph renders a resolved dependency.Graph in topological
// order, one row per node.
func RenderDependencyGraph(w io.Writer, g *dependency.Graph) {
	t := newTable(w, "NAME", "REPOSITORY", "VERSION", "CONSTRAINT", "PARENT")
	for _, n := range g.Order {
		parent := n.Parent
		if parent == "" {
			parent = "(root)"
		}
		t.AddRow(n.Name, n.Repository, n.Version, n.Constraint, parent)
	}
	t.Render()
}

// RenderRepoEntries renders a repository backend's Search results.
func RenderRepoEntries(w io.Writer, entries []repo.Entry) {
	t := newTable(w, "NAME", "VERSION", "DESCRIPTION")
	for _, e := range entries {
		t.AddRow(e.Name, e.Version, e.Description)
	}
	t.Render()
}
