package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laneboard/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default("main")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "main", cfg.Board.ID)
	assert.Equal(t, "under_evaluation", cfg.RankedLane())
	assert.Equal(t, []string{"admin"}, cfg.AdminRoles())
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	cfg, err := config.FromYAML([]byte(config.GenerateDefault("b1")))
	require.NoError(t, err)
	assert.Equal(t, "b1", cfg.Board.ID)
	assert.Len(t, cfg.Statuses, 8)
}

func TestReasonSettingBoolOrPrompt(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
board:
  id: b
ranked_status: a
statuses:
  - id: a
    moves: [b, c]
  - id: b
    requirements:
      reason: true
  - id: c
    requirements:
      reason: "Tell us why."
`))
	require.NoError(t, err)
	assert.True(t, cfg.Statuses[1].Requirements.Reason.Required)
	assert.Empty(t, cfg.Statuses[1].Requirements.Reason.Prompt)
	assert.True(t, cfg.Statuses[2].Requirements.Reason.Required)
	assert.Equal(t, "Tell us why.", cfg.Statuses[2].Requirements.Reason.Prompt)
}

func TestReasonSettingRejectsOtherTypes(t *testing.T) {
	_, err := config.FromYAML([]byte(`
board:
  id: b
statuses:
  - id: a
    requirements:
      reason: [nope]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reason must be a bool or a prompt string")
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing board id",
			yaml: "statuses:\n  - id: a\n",
			want: "board.id is required",
		},
		{
			name: "no statuses",
			yaml: "board:\n  id: b\n",
			want: "statuses is required",
		},
		{
			name: "unknown move target",
			yaml: "board:\n  id: b\nstatuses:\n  - id: a\n    moves: [ghost]\n",
			want: "unknown status ghost",
		},
		{
			name: "unknown ranked status",
			yaml: "board:\n  id: b\nranked_status: ghost\nstatuses:\n  - id: a\n",
			want: "not a defined status",
		},
		{
			name: "duplicate status id",
			yaml: "board:\n  id: b\nstatuses:\n  - id: a\n  - id: a\n",
			want: "duplicate status id",
		},
		{
			name: "threshold out of range",
			yaml: "board:\n  id: b\nstatuses:\n  - id: a\n    requirements:\n      milestone_threshold: 150\n",
			want: "milestone_threshold must be 0..100",
		},
		{
			name: "rbac without admin role",
			yaml: "board:\n  id: b\nstatuses:\n  - id: a\nrbac:\n  roles:\n    member:\n      description: m\n",
			want: "must include admin",
		},
		{
			name: "webhook without url",
			yaml: "board:\n  id: b\nstatuses:\n  - id: a\nwebhooks:\n  - events: [project.moved]\n",
			want: "empty url",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestAdminRolesFromRBAC(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
board:
  id: b
statuses:
  - id: a
rbac:
  roles:
    admin:
      admin: true
    lead:
      admin: true
    member:
      description: regular
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "lead"}, cfg.AdminRoles())
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadOptional(dir)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "laneboard.yml"), []byte(config.GenerateDefault("w1")), 0o644))
	cfg, err = config.LoadOptional(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "w1", cfg.Board.ID)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := config.Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
