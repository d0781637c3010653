package statusgraph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laneboard/internal/config"
	"laneboard/internal/statusgraph"
)

func defaultGraph(t *testing.T) *statusgraph.Graph {
	t.Helper()
	g, err := statusgraph.New(config.Default("test-board"))
	require.NoError(t, err)
	return g
}

func TestAllowedDestinationsIncludesSelf(t *testing.T) {
	g := defaultGraph(t)
	dests := g.AllowedDestinations("under_evaluation", false)
	assert.Contains(t, dests, "under_evaluation")
	assert.Contains(t, dests, "in_development")
	assert.Contains(t, dests, "on_hold")
	assert.Contains(t, dests, "denied")
	assert.NotContains(t, dests, "completed")
}

func TestAdminMovesGated(t *testing.T) {
	g := defaultGraph(t)
	assert.False(t, g.CanMove("in_development", "under_evaluation", false))
	assert.True(t, g.CanMove("in_development", "under_evaluation", true))
	assert.False(t, g.CanMove("on_hold", "cancelled", false))
	assert.True(t, g.CanMove("on_hold", "cancelled", true))
}

func TestTerminalStatusOnlyAllowsSelf(t *testing.T) {
	g := defaultGraph(t)
	dests := g.AllowedDestinations("completed", true)
	assert.Equal(t, map[string]struct{}{"completed": {}}, dests)
}

func TestUnknownStatusHasNoDestinations(t *testing.T) {
	g := defaultGraph(t)
	assert.Empty(t, g.AllowedDestinations("nope", true))
	assert.False(t, g.CanMove("nope", "completed", true))
}

func TestRequirementsDefaultPermissiveForUnknown(t *testing.T) {
	g := defaultGraph(t)
	assert.Equal(t, statusgraph.Requirements{}, g.Requirements("nope"))
}

func TestMilestoneThresholdDefaultsTo100(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
board:
  id: b
statuses:
  - id: a
    moves: [b]
  - id: b
    requirements:
      milestones: true
ranked_status: a
`))
	require.NoError(t, err)
	g, err := statusgraph.New(cfg)
	require.NoError(t, err)
	req := g.Requirements("b")
	assert.True(t, req.Milestones)
	assert.Equal(t, 100, req.MilestoneThreshold)
}

func TestHiddenStatusExcludedByDefault(t *testing.T) {
	g := defaultGraph(t)
	assert.True(t, g.IsHidden("archived"))
	ids := func(statuses []statusgraph.Status) []string {
		out := make([]string, 0, len(statuses))
		for _, s := range statuses {
			out = append(out, s.ID)
		}
		return out
	}
	assert.NotContains(t, ids(g.Statuses(false)), "archived")
	assert.Contains(t, ids(g.Statuses(true)), "archived")
}

func TestStages(t *testing.T) {
	g := defaultGraph(t)
	assert.True(t, g.HasStage("in_development", "build"))
	assert.False(t, g.HasStage("in_development", "hypercare"))
	assert.Nil(t, g.Stages("under_evaluation"))
}

func TestRankedLane(t *testing.T) {
	g := defaultGraph(t)
	assert.Equal(t, "under_evaluation", g.RankedLane())
}

func TestNewRejectsUnknownMoveTarget(t *testing.T) {
	cfg := config.Default("b")
	cfg.Statuses[0].Moves = append(cfg.Statuses[0].Moves, "nowhere")
	_, err := statusgraph.New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status nowhere")
}

func TestNewRejectsDuplicateStatus(t *testing.T) {
	cfg := config.Default("b")
	cfg.Statuses = append(cfg.Statuses, cfg.Statuses[0])
	_, err := statusgraph.New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate status id")
}

func TestStatusReturnsCopies(t *testing.T) {
	g := defaultGraph(t)
	s1, ok := g.Status("in_development")
	require.True(t, ok)
	s1.Moves[0] = "mutated"
	s2, _ := g.Status("in_development")
	assert.NotEqual(t, "mutated", s2.Moves[0])
}
