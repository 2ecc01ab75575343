package printer

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hashmap-kz/shipctl/internal/dependency"
	"github.com/hashmap-kz/shipctl/internal/release"
	"github.com/hashmap-kz/shipctl/internal/repo"
)

func TestRenderReleaseHistorySortsNewestFirst(t *testing.T) {
	var buf bytes.Buffer
	now := time.Now()
	RenderReleaseHistory(&buf, []release.Summary{
		{Revision: 1, State: release.StateSuperseded, UpdatedAt: now},
		{Revision: 2, State: release.StateDeployed, UpdatedAt: now},
	})
	out := buf.String()
	assert.Contains(t, out, "Deployed")
	assert.Contains(t, out, "Superseded")
}

func TestRenderDependencyGraphListsNodes(t *testing.T) {
	var buf bytes.Buffer
	g := &dependency.Graph{Order: []*dependency.Node{
		{Name: "redis", Repository: "https://repo.example.com", Version: "6.2.0", Constraint: "~6.0"},
	}}
	RenderDependencyGraph(&buf, g)
	assert.Contains(t, buf.String(), "redis")
	assert.Contains(t, buf.String(), "(root)")
}

func TestRenderRepoEntriesListsEntries(t *testing.T) {
	var buf bytes.Buffer
	RenderRepoEntries(&buf, []repo.Entry{{Name: "webapp", Version: "2.1.0", Description: "a pack"}})
	assert.Contains(t, buf.String(), "webapp")
}
