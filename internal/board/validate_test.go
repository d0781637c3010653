package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laneboard/internal/config"
	"laneboard/internal/statusgraph"
)

func testGraph(t *testing.T) *statusgraph.Graph {
	t.Helper()
	g, err := statusgraph.New(config.Default("test-board"))
	require.NoError(t, err)
	return g
}

func TestValidateMoveSelfTransitionAlwaysLegal(t *testing.T) {
	g := testGraph(t)
	// Even a guarded lane never blocks a rank-only move inside itself.
	for _, id := range []string{"under_evaluation", "on_hold", "denied", "in_production", "completed"} {
		d, err := ValidateMove(g, false, id, id, 0)
		require.NoError(t, err, id)
		assert.False(t, d.NeedsReason, id)
	}
}

func TestValidateMoveIllegalTransition(t *testing.T) {
	g := testGraph(t)
	_, err := ValidateMove(g, false, "under_evaluation", "completed", 100)
	var illegal IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, "under_evaluation", illegal.From)
	assert.Equal(t, "completed", illegal.To)
}

func TestValidateMoveAdminOnlyEdge(t *testing.T) {
	g := testGraph(t)
	_, err := ValidateMove(g, false, "in_development", "under_evaluation", 0)
	var illegal IllegalTransitionError
	require.ErrorAs(t, err, &illegal)

	d, err := ValidateMove(g, true, "in_development", "under_evaluation", 0)
	require.NoError(t, err)
	assert.False(t, d.NeedsReason)
}

func TestValidateMoveMilestonesGate(t *testing.T) {
	g := testGraph(t)
	// The gate belongs to the destination: in_production demands full
	// milestone progress before it accepts a project.
	_, err := ValidateMove(g, false, "in_development", "in_production", 60)
	var incomplete MilestonesIncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, 60, incomplete.Progress)
	assert.Equal(t, 100, incomplete.Threshold)

	d, err := ValidateMove(g, false, "in_development", "in_production", 100)
	require.NoError(t, err)
	assert.False(t, d.NeedsReason)

	// Leaving in_production carries no gate of its own.
	d, err = ValidateMove(g, false, "in_production", "completed", 0)
	require.NoError(t, err)
	assert.False(t, d.NeedsReason)
}

func TestValidateMoveReasonPrompt(t *testing.T) {
	g := testGraph(t)

	d, err := ValidateMove(g, false, "under_evaluation", "on_hold", 0)
	require.NoError(t, err)
	assert.True(t, d.NeedsReason)
	assert.Equal(t, "Why is this project on hold?", d.ReasonPrompt)

	// reason: true falls back to the generated prompt.
	d, err = ValidateMove(g, false, "under_evaluation", "denied", 0)
	require.NoError(t, err)
	assert.True(t, d.NeedsReason)
	assert.Equal(t, "Why is this project moving to denied?", d.ReasonPrompt)
}

func TestValidateMoveStructureBeatsRequirements(t *testing.T) {
	g := testGraph(t)
	// cancelled requires a reason, but the structural check fails first.
	_, err := ValidateMove(g, false, "under_evaluation", "cancelled", 0)
	var illegal IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
}

func TestValidateMoveMilestonesBeatReason(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
board:
  id: b
statuses:
  - id: a
    moves: [b]
  - id: b
    requirements:
      reason: true
      milestones: true
      milestone_threshold: 50
ranked_status: a
`))
	require.NoError(t, err)
	g, err := statusgraph.New(cfg)
	require.NoError(t, err)

	_, err = ValidateMove(g, false, "a", "b", 10)
	var incomplete MilestonesIncompleteError
	require.ErrorAs(t, err, &incomplete)

	d, err := ValidateMove(g, false, "a", "b", 50)
	require.NoError(t, err)
	assert.True(t, d.NeedsReason)
}
