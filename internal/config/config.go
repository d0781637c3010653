package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models laneboard.yml.
type Config struct {
	Board struct {
		ID    string `yaml:"id"`
		Title string `yaml:"title"`
	} `yaml:"board"`
	Statuses     []StatusConfig `yaml:"statuses"`
	RankedStatus string         `yaml:"ranked_status"`
	RBAC         struct {
		Roles map[string]RBACRole `yaml:"roles"`
	} `yaml:"rbac"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type StatusConfig struct {
	ID           string             `yaml:"id"`
	Title        string             `yaml:"title"`
	Hidden       bool               `yaml:"hidden"`
	Stages       []StageConfig      `yaml:"stages"`
	Moves        []string           `yaml:"moves"`
	AdminMoves   []string           `yaml:"admin_moves"`
	Requirements RequirementsConfig `yaml:"requirements"`
}

type StageConfig struct {
	ID     string `yaml:"id"`
	Title  string `yaml:"title"`
	Hidden bool   `yaml:"hidden"`
}

// RequirementsConfig lists preconditions attached to a destination status.
type RequirementsConfig struct {
	Reason             ReasonSetting `yaml:"reason"`
	Milestones         bool          `yaml:"milestones"`
	MilestoneThreshold int           `yaml:"milestone_threshold"`
}

// ReasonSetting accepts either a boolean or a prompt string in YAML.
type ReasonSetting struct {
	Required bool
	Prompt   string
}

func (r *ReasonSetting) UnmarshalYAML(value *yaml.Node) error {
	var b bool
	if err := value.Decode(&b); err == nil {
		r.Required = b
		r.Prompt = ""
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("requirements.reason must be a bool or a prompt string")
	}
	r.Required = strings.TrimSpace(s) != ""
	r.Prompt = s
	return nil
}

func (r ReasonSetting) MarshalYAML() (any, error) {
	if r.Prompt != "" {
		return r.Prompt, nil
	}
	return r.Required, nil
}

type RBACRole struct {
	Description string `yaml:"description"`
	Admin       bool   `yaml:"admin"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with lb config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure. Every status id must
// be trimmed, non-empty and unique, and every move, admin move and ranked
// lane reference must resolve to a defined status.
func (c *Config) Validate() error {
	if c.Board.ID == "" {
		return fmt.Errorf("config.board.id is required")
	}
	if len(c.Statuses) == 0 {
		return fmt.Errorf("config.statuses is required")
	}
	known := map[string]bool{}
	for i, s := range c.Statuses {
		if s.ID != strings.TrimSpace(s.ID) || s.ID == "" {
			return fmt.Errorf("statuses[%d] has empty or untrimmed id %q", i, s.ID)
		}
		if known[s.ID] {
			return fmt.Errorf("duplicate status id %s", s.ID)
		}
		known[s.ID] = true
		stageIDs := map[string]bool{}
		for j, st := range s.Stages {
			if st.ID != strings.TrimSpace(st.ID) || st.ID == "" {
				return fmt.Errorf("status %s stages[%d] has empty or untrimmed id", s.ID, j)
			}
			if stageIDs[st.ID] {
				return fmt.Errorf("status %s has duplicate stage id %s", s.ID, st.ID)
			}
			stageIDs[st.ID] = true
		}
		if s.Requirements.MilestoneThreshold < 0 || s.Requirements.MilestoneThreshold > 100 {
			return fmt.Errorf("status %s milestone_threshold must be 0..100", s.ID)
		}
	}
	for _, s := range c.Statuses {
		for _, to := range s.Moves {
			if !known[to] {
				return fmt.Errorf("status %s move references unknown status %s", s.ID, to)
			}
		}
		for _, to := range s.AdminMoves {
			if !known[to] {
				return fmt.Errorf("status %s admin move references unknown status %s", s.ID, to)
			}
		}
	}
	if c.RankedStatus != "" && !known[c.RankedStatus] {
		return fmt.Errorf("ranked_status %s is not a defined status", c.RankedStatus)
	}
	if len(c.RBAC.Roles) > 0 {
		if _, ok := c.RBAC.Roles["admin"]; !ok {
			return fmt.Errorf("config.rbac.roles must include admin")
		}
		for roleID := range c.RBAC.Roles {
			if roleID == "" {
				return fmt.Errorf("config.rbac.roles contains empty role id")
			}
		}
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhooks[%d] has empty url", i)
		}
	}
	return nil
}

// RankedLane returns the status id of the manually ranked lane.
func (c *Config) RankedLane() string {
	if c.RankedStatus != "" {
		return c.RankedStatus
	}
	return "under_evaluation"
}

// AdminRoles returns the role ids flagged admin. With no rbac section the
// built-in admin role applies.
func (c *Config) AdminRoles() []string {
	if len(c.RBAC.Roles) == 0 {
		return []string{"admin"}
	}
	var out []string
	for id, role := range c.RBAC.Roles {
		if role.Admin {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "laneboard.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(boardID string) string {
	return fmt.Sprintf(defaultTemplate, boardID)
}

// Default returns the default Config struct for a board.
func Default(boardID string) *Config {
	var cfg Config
	cfg.Board.ID = boardID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, boardID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `board:
  id: %s
  title: "Project Tracking"

ranked_status: under_evaluation

statuses:
  - id: under_evaluation
    title: "Under Evaluation"
    moves: [in_development, on_hold, denied]

  - id: in_development
    title: "In Development"
    stages:
      - id: design
        title: "Design"
      - id: build
        title: "Build"
      - id: test
        title: "Test"
    moves: [in_production, on_hold, cancelled]
    admin_moves: [under_evaluation]

  - id: in_production
    title: "In Production"
    stages:
      - id: hypercare
        title: "Hypercare"
      - id: released
        title: ""
    moves: [completed]
    requirements:
      milestones: true
      milestone_threshold: 100

  - id: on_hold
    title: "On Hold"
    moves: [under_evaluation, in_development]
    admin_moves: [cancelled]
    requirements:
      reason: "Why is this project on hold?"

  - id: denied
    title: "Denied"
    requirements:
      reason: true

  - id: cancelled
    title: "Cancelled"
    requirements:
      reason: true

  - id: completed
    title: "Completed"

  - id: archived
    title: "Archived"
    hidden: true

rbac:
  roles:
    admin:
      description: "Full board control including admin-only moves"
      admin: true
    member:
      description: "Regular board usage"
`
