package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"laneboard/internal/app"
	"laneboard/internal/board"
	"laneboard/internal/config"
	"laneboard/internal/db"
	"laneboard/internal/domain"
	"laneboard/internal/migrate"
	"laneboard/internal/repo"
	"laneboard/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "lb",
	Short: "Laneboard CLI",
	Long: `Laneboard tracks projects on a kanban board with a guarded status workflow.
Core concepts:
- Workspace: your .laneboard directory with the database; the board config lives in the DB and can be imported from laneboard.yml.
- Board: one set of lanes (statuses) projects move through; the first lane is manually ranked by drag and drop.
- Statuses: under_evaluation -> in_development -> in_production -> completed, with on_hold, denied and cancelled as exits. Each status declares where it can move next; some moves are admin-only.
- Requirements: a destination can demand a reason (recorded as a comment) or full milestone progress before it accepts a project.
- Rankings: the order of the evaluation lane; edits apply immediately and flush in batches ('lb rank save' retries a failed flush).
- Event log: diary of changes, view with 'lb log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("LANEBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("board", "", "board id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("board", rootCmd.PersistentFlags().Lookup("board"))
}

func registerCommands() {
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(rankCmd())
	rootCmd.AddCommand(milestoneCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(rbacCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func boardCmd() *cobra.Command {
	b := &cobra.Command{Use: "board", Short: "Inspect the board"}
	b.AddCommand(boardShowCmd())
	b.AddCommand(boardStatusesCmd())
	return b
}

func boardShowCmd() *cobra.Command {
	var includeHidden bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the board lanes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e board.Engine) error {
				lanes, err := e.Lanes(ctx, includeHidden)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(lanes)
				}
				for _, lane := range lanes {
					fmt.Printf("%s (%d)\n", lane.Status.Title, len(lane.Cards))
					tw := table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.AppendHeader(table.Row{"Rank", "ID", "Title", "Kind", "Stage"})
					for _, card := range lane.Cards {
						rank := ""
						if card.Rank != nil {
							rank = fmt.Sprintf("%d", *card.Rank)
						}
						stage := ""
						if card.Project.DevStage != nil {
							stage = *card.Project.DevStage
						}
						tw.AppendRow(table.Row{rank, card.Project.ID, card.Project.Title, card.Project.Kind, stage})
					}
					tw.Render()
					fmt.Println()
				}
				state := e.Ranks.State()
				if state.Dirty {
					fmt.Println("warning: unsaved ranking changes; run 'lb rank save'")
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&includeHidden, "include-hidden", false, "include hidden lanes")
	return cmd
}

func boardStatusesCmd() *cobra.Command {
	var includeHidden bool
	cmd := &cobra.Command{
		Use:   "statuses",
		Short: "Show the status catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e board.Engine) error {
				statuses := e.Graph.Statuses(includeHidden)
				if viper.GetBool("json") {
					return printJSON(statuses)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Moves", "Admin moves", "Requirements"})
				for _, s := range statuses {
					reqs := []string{}
					if s.Requirements.Reason {
						reqs = append(reqs, "reason")
					}
					if s.Requirements.Milestones {
						reqs = append(reqs, fmt.Sprintf("milestones>=%d", s.Requirements.MilestoneThreshold))
					}
					tw.AppendRow(table.Row{s.ID, s.Title, strings.Join(s.Moves, ","), strings.Join(s.AdminMoves, ","), strings.Join(reqs, ",")})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&includeHidden, "include-hidden", false, "include hidden statuses")
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
		Long:  "Projects are the cards on the board. They move between lanes with 'lb project move'; moves into guarded lanes may ask for a reason or complete milestones.",
	}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectMoveCmd())
	prj.AddCommand(projectCommentCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var opts board.CreateProjectOptions
	var priority int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			if cmd.Flags().Changed("priority") {
				opts.Priority = &priority
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e board.Engine) error {
				p, err := e.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "project id (optional, generated if omitted)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Kind, "kind", "rpa", "project kind (rpa, script, enhancement, bug)")
	cmd.Flags().StringVar(&opts.Status, "status", "", "initial status (defaults to the ranked lane)")
	cmd.Flags().StringVar(&opts.Stage, "stage", "", "initial stage")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority (lower is higher)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func projectListCmd() *cobra.Command {
	var f repo.ProjectFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e board.Engine) error {
				if f.BoardID == "" {
					f.BoardID = e.Config.Board.ID
				}
				items, err := e.Repo.ListProjects(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Kind", "Status", "Stage"})
				for _, p := range items {
					stage := ""
					if p.DevStage != nil {
						stage = *p.DevStage
					}
					tw.AppendRow(table.Row{p.ID, p.Title, p.Kind, p.Status, stage})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Kind, "kind", "", "kind filter")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e board.Engine) error {
				p, err := e.Repo.GetProject(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				if err := printJSONOrTable(p); err != nil {
					return err
				}
				comments, err := board.Comments(p)
				if err != nil {
					return err
				}
				for _, c := range comments {
					fmt.Printf("  %s %s: %s\n", c.Date, c.User, c.Comment)
				}
				return nil
			})
		},
	}
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var title, kind string
	var priority int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := board.UpdateProjectOptions{ID: args[0], ActorID: viper.GetString("actor-id")}
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			if cmd.Flags().Changed("kind") {
				opts.Kind = &kind
			}
			if cmd.Flags().Changed("priority") {
				opts.Priority = &priority
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e board.Engine) error {
				p, err := e.UpdateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&kind, "kind", "", "project kind")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority (lower is higher)")
	return cmd
}

func projectMoveCmd() *cobra.Command {
	var opts board.DropOptions
	var targetIndex int
	cmd := &cobra.Command{
		Use:   "move <id>",
		Short: "Move a project (drag-and-drop gesture)",
		Long:  "Applies one drop: a status/stage change, a rank change inside the ranked lane, or both. Guarded destinations prompt for a reason unless --reason is given.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ProjectID = args[0]
			opts.ActorID = viper.GetString("actor-id")
			if cmd.Flags().Changed("target-index") {
				opts.TargetIndex = &targetIndex
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e board.Engine) error {
				isAdmin, err := e.IsAdmin(ctx, opts.ActorID)
				if err != nil {
					return err
				}
				opts.IsAdmin = isAdmin
				res, err := e.Drop(ctx, opts)
				if err != nil {
					if errors.Is(err, board.ErrReasonCanceled) {
						fmt.Println("move canceled")
						return nil
					}
					return err
				}
				if !res.StatusChanged && !res.RankChanged {
					fmt.Println("nothing to do")
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ToStatus, "to", "", "destination status (defaults to current)")
	cmd.Flags().StringVar(&opts.ToStage, "stage", "", "destination stage")
	cmd.Flags().IntVar(&targetIndex, "target-index", 0, "drop slot index in the ranked lane")
	cmd.Flags().StringVar(&opts.TargetProjectID, "target-project", "", "project occupying the drop slot")
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "reason for guarded destinations")
	return cmd
}

func projectCommentCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "comment <id>",
		Short: "Add a comment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e board.Engine) error {
				p, err := e.AddComment(ctx, args[0], message, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				comments, err := board.Comments(p)
				if err != nil {
					return err
				}
				return printJSONOrTable(comments)
			})
		},
	}
	cmd.Flags().StringVar(&message, "message", "", "comment text")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e board.Engine) error {
				return e.DeleteProject(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func rankCmd() *cobra.Command {
	r := &cobra.Command{
		Use:   "rank",
		Short: "Manage the ranked lane order",
		Long:  "Rank edits apply to memory immediately and flush in batches. A failed flush keeps the changes dirty; 'lb rank save' retries.",
	}
	r.AddCommand(rankListCmd())
	r.AddCommand(rankSetCmd())
	r.AddCommand(rankSaveCmd())
	return r
}

func rankListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rankings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e board.Engine) error {
				rankings := e.Ranks.Rankings()
				if viper.GetBool("json") {
					return printJSON(map[string]any{"rankings": rankings, "state": e.Ranks.State()})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Rank", "Project"})
				for _, r := range rankings {
					tw.AppendRow(table.Row{r.Rank, r.ProjectID})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func rankSetCmd() *cobra.Command {
	var rankValue int
	cmd := &cobra.Command{
		Use:   "set <project-id>",
		Short: "Set a project's rank directly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("rank") {
				return fmt.Errorf("--rank required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e board.Engine) error {
				if _, err := e.Repo.GetProject(ctx, args[0]); err != nil {
					return err
				}
				e.Ranks.Update(domain.Ranking{ProjectID: args[0], Rank: rankValue})
				if err := e.Ranks.TriggerSave(ctx); err != nil {
					return err
				}
				return printJSONOrTable(e.Ranks.State())
			})
		},
	}
	cmd.Flags().IntVar(&rankValue, "rank", 0, "rank value (lower sorts first)")
	return cmd
}

func rankSaveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Flush unsaved rankings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e board.Engine) error {
				state, err := e.SaveRankings(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(state)
			})
		},
	}
	return cmd
}

func milestoneCmd() *cobra.Command {
	m := &cobra.Command{
		Use:   "milestone",
		Short: "Manage milestones",
		Long:  "Milestones gate guarded lanes: a destination that requires them blocks the move until the mean progress reaches its threshold.",
	}
	m.AddCommand(milestoneAddCmd())
	m.AddCommand(milestoneListCmd())
	m.AddCommand(milestoneSetCmd())
	return m
}

func milestoneAddCmd() *cobra.Command {
	var title string
	var progress int
	cmd := &cobra.Command{
		Use:   "add <project-id>",
		Short: "Add a milestone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e board.Engine) error {
				m, err := e.AddMilestone(ctx, args[0], title, progress, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "milestone title")
	cmd.Flags().IntVar(&progress, "progress", 0, "initial progress (0..100)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func milestoneListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List milestones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e board.Engine) error {
				items, err := e.Repo.ListMilestones(ctx, args[0])
				if err != nil {
					return err
				}
				progress, err := e.Repo.MilestoneProgress(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"items": items, "progress": progress})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Progress"})
				for _, m := range items {
					tw.AppendRow(table.Row{m.ID, m.Title, m.Progress})
				}
				tw.Render()
				fmt.Printf("overall: %d%%\n", progress)
				return nil
			})
		},
	}
	return cmd
}

func milestoneSetCmd() *cobra.Command {
	var progress int
	cmd := &cobra.Command{
		Use:   "set <milestone-id>",
		Short: "Set milestone progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("progress") {
				return fmt.Errorf("--progress required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e board.Engine) error {
				return e.SetMilestoneProgress(ctx, args[0], progress, viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().IntVar(&progress, "progress", 0, "progress (0..100)")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect board config",
		Long:  "Config is the rulebook (stored in DB): lanes, stages, allowed moves and their requirements. Import from laneboard.yml if desired.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configImportCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e board.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e board.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				out := map[string]any{"ok": err == nil}
				if err != nil {
					out["error"] = err.Error()
				}
				return printJSON(out)
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	var boardID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default laneboard.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(boardID)), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&boardID, "board-id", "main", "board id for the generated config")
	return cmd
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import board config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e board.Engine) error {
				boardID := cfg.Board.ID
				if boardID == "" {
					boardID = e.Config.Board.ID
				}
				if err := e.Repo.UpsertBoardConfig(ctx, boardID, cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func rbacCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rbac",
		Short: "RBAC management",
	}
	cmd.AddCommand(rbacWhoamiCmd())
	cmd.AddCommand(rbacRolesCmd())
	cmd.AddCommand(rbacGrantCmd())
	cmd.AddCommand(rbacRevokeCmd())
	cmd.AddCommand(apiKeyCmd())
	return cmd
}

func rbacRolesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "List configured roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e board.Engine) error {
				if viper.GetBool("json") {
					return printJSON(e.Config.RBAC.Roles)
				}
				ids := make([]string, 0, len(e.Config.RBAC.Roles))
				for id := range e.Config.RBAC.Roles {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Role", "Admin", "Description"})
				for _, id := range ids {
					role := e.Config.RBAC.Roles[id]
					tw.AppendRow(table.Row{id, role.Admin, role.Description})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api-key",
		Short: "API key management",
	}
	cmd.AddCommand(apiKeyCreateCmd())
	cmd.AddCommand(apiKeyDeleteCmd())
	return cmd
}

func apiKeyCreateCmd() *cobra.Command {
	var actor, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				return fmt.Errorf("--actor required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e board.Engine) error {
				// The raw key is shown once; only the hash is stored.
				raw := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
				key := domain.APIKey{
					ID:      uuid.NewString(),
					ActorID: actor,
					Name:    name,
					KeyHash: repo.HashAPIKey(raw),
				}
				tx, err := e.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := e.Repo.EnsureActor(ctx, tx, actor, time.Now().UTC().Format(time.RFC3339)); err != nil {
					return err
				}
				if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
					return err
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"id": key.ID, "actor_id": actor, "key": raw})
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor id the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apiKeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e board.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func rbacWhoamiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show current actor roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e board.Engine) error {
				actorID := viper.GetString("actor-id")
				roles, err := e.Repo.ActorRoles(ctx, e.Config.Board.ID, actorID)
				if err != nil {
					return err
				}
				isAdmin, err := e.IsAdmin(ctx, actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"actor_id": actorID, "roles": roles, "admin": isAdmin})
			})
		},
	}
	return cmd
}

func rbacGrantCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "grant-role",
		Short: "Grant role to actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" || role == "" {
				return fmt.Errorf("--actor and --role required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e board.Engine) error {
				return e.GrantRole(ctx, target, role, viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "role id")
	return cmd
}

func rbacRevokeCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "revoke-role",
		Short: "Revoke role from actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" || role == "" {
				return fmt.Errorf("--actor and --role required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e board.Engine) error {
				return e.RevokeRole(ctx, target, role, viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "role id")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: moves, comments, milestones, role changes.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e board.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, e.Config.Board.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveBoardAndConfig(cmd.Context(), workspace, viper.GetString("board"), viper.GetString("actor-id"), r)
			if err != nil {
				return err
			}
			e, err := board.New(conn, cfg)
			if err != nil {
				return err
			}
			if err := e.LoadRankings(cmd.Context()); err != nil {
				return err
			}
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("LANEBOARD_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("LANEBOARD_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(e)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Laneboard API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

// terminalPrompter asks for a reason on stdin. An empty line cancels.
type terminalPrompter struct{}

func (terminalPrompter) PromptReason(prompt string) (string, bool) {
	fmt.Printf("%s (empty to cancel): ", prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return "", false
	}
	line := strings.TrimSpace(scanner.Text())
	if line == "" {
		return "", false
	}
	return line, true
}

func withEngine(ctx context.Context, fn func(context.Context, board.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveBoardAndConfig(ctx, workspace, viper.GetString("board"), viper.GetString("actor-id"), r)
	if err != nil {
		return err
	}
	e, err := board.New(conn, cfg)
	if err != nil {
		return err
	}
	if err := e.LoadRankings(ctx); err != nil {
		return err
	}
	e.Prompter = terminalPrompter{}
	return fn(ctx, e)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
