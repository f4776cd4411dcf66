package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"obralink/internal/access"
	"obralink/internal/cache"
	"obralink/internal/config"
	"obralink/internal/db"
	"obralink/internal/docstore"
	"obralink/internal/domain"
	"obralink/internal/migrate"
	"obralink/internal/server"
	"obralink/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "obra",
	Short: "Obralink CLI",
	Long: `Obralink manages construction projects with role-scoped access.
- Workspace: the .obralink directory holding the document database.
- Projects: each has a coordinator and optionally a supervisor; who sees
  what is decided by the caller's role (GERENTE/PMO see all, COORDINADOR
  and SUPERVISOR only their assignments, EMPLEADO none).
- Tasks: a tree of areas, items and activities with a progress percentage.
- Progress log: the task's history; recording progress writes the log
  entry and the task update together.
- Health: a derived report (progress, budget, schedule), never stored.
- Audit log: every mutation, view with 'obra log tail'.`,
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
	viper.SetEnvPrefix("OBRALINK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user", "local-user", "acting user id")
	rootCmd.PersistentFlags().String("role", "GERENTE", "acting role")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
	_ = viper.BindPFlag("role", rootCmd.PersistentFlags().Lookup("role"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(milestoneCmd())
	rootCmd.AddCommand(progressCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(rolesCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func actingUser() string      { return viper.GetString("user") }
func actingRole() access.Role { return access.Role(viper.GetString("role")) }

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	var pageSize int
	var cursor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visible projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				page, err := s.ListProjects(ctx, actingUser(), actingRole(), pageSize, cursor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Coordinator", "Supervisor", "Created"})
				for _, p := range page.Projects {
					supervisor := ""
					if p.SupervisorID != nil {
						supervisor = *p.SupervisorID
					}
					tw.AppendRow(table.Row{p.ID, p.Name, p.Status, p.CoordinatorID, supervisor, p.CreatedAt})
				}
				tw.Render()
				if page.NextCursor != "" {
					fmt.Printf("next cursor: %s\n", page.NextCursor)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "page size")
	cmd.Flags().StringVar(&cursor, "cursor", "", "pagination cursor")
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var opts store.CreateProjectOptions
	var supervisor, startDate, endDate string
	var budgetAllocated, budgetSpent float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.SupervisorID = optionalString(supervisor)
			opts.StartDate = optionalString(startDate)
			opts.EndDate = optionalString(endDate)
			if budgetAllocated > 0 || budgetSpent > 0 {
				opts.Resources = &domain.Resources{
					BudgetAllocated: budgetAllocated,
					BudgetSpent:     budgetSpent,
				}
			}
			return withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				p, err := s.CreateProject(ctx, actingUser(), actingRole(), opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Status, "status", "", "initial status")
	cmd.Flags().StringVar(&opts.CoordinatorID, "coordinator", "", "coordinator user id")
	cmd.Flags().StringVar(&supervisor, "supervisor", "", "supervisor user id")
	cmd.Flags().StringVar(&startDate, "start-date", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "end date (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&budgetAllocated, "budget", 0, "allocated budget")
	cmd.Flags().Float64Var(&budgetSpent, "spent", 0, "spent budget")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("coordinator")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				p, err := s.ResolveAccess(ctx, args[0], actingUser(), actingRole())
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var name, description, status, coordinator, supervisor, startDate, endDate string
	cmd := &cobra.Command{
		Use:   "update <project-id>",
		Short: "Update project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upd := store.ProjectUpdate{}
			if cmd.Flags().Changed("name") {
				upd.Name = &name
			}
			if cmd.Flags().Changed("description") {
				upd.Description = &description
			}
			if cmd.Flags().Changed("status") {
				upd.Status = &status
			}
			if cmd.Flags().Changed("coordinator") {
				upd.CoordinatorID = &coordinator
			}
			if cmd.Flags().Changed("supervisor") {
				upd.SupervisorID = &supervisor
			}
			if cmd.Flags().Changed("start-date") {
				upd.StartDate = &startDate
			}
			if cmd.Flags().Changed("end-date") {
				upd.EndDate = &endDate
			}
			return withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				p, err := s.UpdateProject(ctx, args[0], actingUser(), actingRole(), upd)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().StringVar(&coordinator, "coordinator", "", "coordinator user id")
	cmd.Flags().StringVar(&supervisor, "supervisor", "", "supervisor user id (empty clears)")
	cmd.Flags().StringVar(&startDate, "start-date", "", "start date")
	cmd.Flags().StringVar(&endDate, "end-date", "", "end date")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete project and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				if err := s.DeleteProject(ctx, args[0], actingUser(), actingRole()); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage project tasks"}
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	return task
}

func taskAddCmd() *cobra.Command {
	var project, parent, startDate, endDate string
	var opts store.TaskCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ParentID = optionalString(parent)
			opts.StartDate = optionalString(startDate)
			opts.EndDate = optionalString(endDate)
			return withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				t, err := s.AddTask(ctx, project, actingUser(), actingRole(), opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "task title")
	cmd.Flags().StringVar(&opts.Type, "type", "ITEM", "task type (ITEM, SUB_ITEM, AREA, ACTIVITY)")
	cmd.Flags().StringVar(&opts.Status, "status", "", "status")
	cmd.Flags().StringVar(&parent, "parent", "", "parent task id")
	cmd.Flags().StringVar(&startDate, "start-date", "", "start date")
	cmd.Flags().StringVar(&endDate, "end-date", "", "end date")
	cmd.Flags().IntVar(&opts.Progress, "progress", 0, "initial progress")
	cmd.Flags().IntVar(&opts.Order, "order", 0, "sibling sort key")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var project string
	var tree bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List project tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				tasks, err := s.ListTasks(ctx, project, actingUser(), actingRole())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				if tree {
					printTaskForest(tasks)
					return nil
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Type", "Status", "Progress", "Parent"})
				for _, t := range tasks {
					parent := ""
					if t.ParentID != nil {
						parent = *t.ParentID
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Type, t.Status, fmt.Sprintf("%d%%", t.Progress), parent})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().BoolVar(&tree, "tree", false, "render as tree")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var project, title, taskType, status, parent, startDate, endDate string
	var progress, order int
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Update task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upd := store.TaskUpdate{}
			if cmd.Flags().Changed("title") {
				upd.Title = &title
			}
			if cmd.Flags().Changed("type") {
				upd.Type = &taskType
			}
			if cmd.Flags().Changed("status") {
				upd.Status = &status
			}
			if cmd.Flags().Changed("parent") {
				upd.ParentID = &parent
			}
			if cmd.Flags().Changed("start-date") {
				upd.StartDate = &startDate
			}
			if cmd.Flags().Changed("end-date") {
				upd.EndDate = &endDate
			}
			if cmd.Flags().Changed("progress") {
				upd.Progress = &progress
			}
			if cmd.Flags().Changed("order") {
				upd.Order = &order
			}
			return withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				t, err := s.UpdateTask(ctx, project, args[0], actingUser(), actingRole(), upd)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&taskType, "type", "", "task type")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().StringVar(&parent, "parent", "", "parent task id (empty moves to root)")
	cmd.Flags().StringVar(&startDate, "start-date", "", "start date")
	cmd.Flags().StringVar(&endDate, "end-date", "", "end date")
	cmd.Flags().IntVar(&progress, "progress", 0, "progress")
	cmd.Flags().IntVar(&order, "order", 0, "sibling sort key")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				if err := s.DeleteTask(ctx, project, args[0], actingUser(), actingRole()); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func milestoneCmd() *cobra.Command {
	ms := &cobra.Command{Use: "milestone", Short: "Manage project milestones"}
	ms.AddCommand(milestoneAddCmd())
	ms.AddCommand(milestoneListCmd())
	ms.AddCommand(milestoneCompleteCmd())
	ms.AddCommand(milestoneDeleteCmd())
	return ms
}

func milestoneAddCmd() *cobra.Command {
	var project string
	var opts store.MilestoneCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add milestone",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				m, err := s.AddMilestone(ctx, project, actingUser(), actingRole(), opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "milestone title")
	cmd.Flags().StringVar(&opts.DueDate, "due-date", "", "due date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("due-date")
	return cmd
}

func milestoneListCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List project milestones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				list, err := s.ListMilestones(ctx, project, actingUser(), actingRole())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Due", "Completed"})
				for _, m := range list {
					tw.AppendRow(table.Row{m.ID, m.Title, m.DueDate, m.Completed})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func milestoneCompleteCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "complete <milestone-id>",
		Short: "Mark milestone completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			done := true
			return withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				m, err := s.UpdateMilestone(ctx, project, args[0], actingUser(), actingRole(), store.MilestoneUpdate{Completed: &done})
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func milestoneDeleteCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "delete <milestone-id>",
		Short: "Delete milestone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				if err := s.DeleteMilestone(ctx, project, args[0], actingUser(), actingRole()); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func progressCmd() *cobra.Command {
	prog := &cobra.Command{Use: "progress", Short: "Task progress recording"}
	prog.AddCommand(progressRecordCmd())
	prog.AddCommand(progressLogCmd())
	return prog
}

func progressRecordCmd() *cobra.Command {
	var project, task, note string
	var progress int
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record task progress (log entry + task update, atomically)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				entry, err := s.RecordProgress(ctx, project, task, actingUser(), actingRole(), progress, note)
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&task, "task", "", "task id")
	cmd.Flags().IntVar(&progress, "progress", 0, "progress percentage")
	cmd.Flags().StringVar(&note, "note", "", "note")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("progress")
	return cmd
}

func progressLogCmd() *cobra.Command {
	var project, task string
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Task progress history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				logs, err := s.ListProgress(ctx, project, task, actingUser(), actingRole())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(logs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"When", "Progress", "By", "Note"})
				for _, l := range logs {
					tw.AppendRow(table.Row{l.CreatedAt, fmt.Sprintf("%d%%", l.Progress), l.RecordedBy, l.Note})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&task, "task", "", "task id")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func healthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health <project-id>",
		Short: "Derived project health report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				rep, err := s.ProjectHealth(ctx, args[0], actingUser(), actingRole())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendRow(table.Row{"Progress", fmt.Sprintf("%d%% (%d/%d tasks)", rep.ProgressPercentage, rep.TasksCompleted, rep.TasksTotal)})
				tw.AppendRow(table.Row{"Budget", rep.BudgetHealth})
				tw.AppendRow(table.Row{"Schedule", rep.ScheduleHealth})
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Audit log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var project string
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				events, err := s.AuditEvents(ctx, project, actingUser(), actingRole(), n, "")
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func rolesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Show the role table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			rules := cfg.Ruleset()
			if viper.GetBool("json") {
				out := map[string]any{}
				for _, r := range rules.Roles() {
					g, _ := rules.Grant(r)
					out[string(r)] = map[string]any{"scope": g.Scope, "capabilities": g.Capabilities}
				}
				return printJSON(out)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Role", "Scope", "Capabilities"})
			for _, r := range rules.Roles() {
				g, _ := rules.Grant(r)
				caps := make([]string, len(g.Capabilities))
				for i, c := range g.Capabilities {
					caps[i] = string(c)
				}
				tw.AppendRow(table.Row{r, g.Scope, strings.Join(caps, ", ")})
			}
			tw.Render()
			return nil
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Workspace configuration",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default obralink.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err == nil {
				err = cfg.Validate()
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
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

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
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
			docs := docstore.NewSQLite(conn)
			s := store.New(docs, cfg.Ruleset(), cache.NewMemory(cfg.CacheTTL()))

			secret := os.Getenv("OBRALINK_JWT_SECRET")
			if secret == "" {
				secret = cfg.Server.JWTSecret
			}
			if secret == "" {
				return fmt.Errorf("OBRALINK_JWT_SECRET is required for bearer auth")
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			handler, err := server.New(server.Config{
				Store:    s,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: secret, DevLogin: cfg.Server.DevLogin},
			})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(docs, cfg.Webhooks)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Obralink API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	return cmd
}

// --- helpers ---

func withStore(ctx context.Context, fn func(context.Context, *store.Store) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	s := store.New(docstore.NewSQLite(conn), cfg.Ruleset(), cache.NewMemory(cfg.CacheTTL()))
	return fn(ctx, s)
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

func printTaskForest(tasks []domain.Task) {
	children := map[string][]domain.Task{}
	var roots []domain.Task
	for _, t := range tasks {
		if t.ParentID == nil {
			roots = append(roots, t)
			continue
		}
		children[*t.ParentID] = append(children[*t.ParentID], t)
	}
	for i, r := range roots {
		printTaskTree(r, children, "", i == len(roots)-1)
	}
}

func printTaskTree(t domain.Task, children map[string][]domain.Task, prefix string, last bool) {
	connector := "├── "
	newPrefix := prefix + "│   "
	if last {
		connector = "└── "
		newPrefix = prefix + "    "
	}
	fmt.Printf("%s%s%s [%s %d%%]\n", prefix, connector, t.Title, t.Status, t.Progress)
	for i, c := range children[t.ID] {
		printTaskTree(c, children, newPrefix, i == len(children[t.ID])-1)
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
