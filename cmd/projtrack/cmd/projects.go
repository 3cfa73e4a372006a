package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wesm/projtrack/internal/query"
)

var listProjectsCmd = &cobra.Command{
	Use:   "list-projects",
	Short: "List all projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := OpenStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		projects, err := st.ListProjects()
		if err != nil {
			return fmt.Errorf("list projects: %w", err)
		}
		if len(projects) == 0 {
			fmt.Println("No projects yet. Create one with 'projtrack create-project' or during triage.")
			return nil
		}
		for _, p := range projects {
			line := fmt.Sprintf("[%d] %s", p.ID, p.Name)
			if p.Description.Valid {
				line += " — " + p.Description.String
			}
			fmt.Println(line)
		}
		return nil
	},
}

var createProjectDescription string

var createProjectCmd = &cobra.Command{
	Use:   "create-project <name>",
	Short: "Create a new project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := OpenStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		project, err := st.CreateProject(args[0], createProjectDescription)
		if err != nil {
			return fmt.Errorf("create project: %w", err)
		}
		fmt.Printf("Created project [%d] %s\n", project.ID, project.Name)
		return nil
	},
}

var projectViewCmd = &cobra.Command{
	Use:   "project-view <project-id>",
	Short: "Show every communication linked to a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid project id %q", args[0])
		}

		st, err := OpenStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		engine := query.NewEngine(st)
		project, err := st.GetProject(id)
		if err != nil {
			return err
		}
		items, err := engine.ProjectView(id)
		if err != nil {
			return err
		}

		fmt.Printf("Project [%d] %s — %d communication(s)\n", project.ID, project.Name, len(items))
		for _, item := range items {
			fmt.Println("  " + formatItem(item))
		}
		return nil
	},
}

// formatItem renders one communication+contact pair for terminal output.
func formatItem(item query.Item) string {
	c := item.Communication
	who := item.Contact.Name.String
	if who == "" {
		who = item.Contact.Email.String
	}
	if who == "" {
		who = "(unknown)"
	}
	subject := c.Subject.String
	if subject == "" {
		subject = "(no subject)"
	}
	ts := c.Timestamp.String
	if ts == "" {
		ts = "(no date)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s  %s  %s  from %s", c.ID, ts, c.Type, subject, who)
	if c.Status != "" {
		fmt.Fprintf(&b, "  (%s)", c.Status)
	}
	return b.String()
}

func init() {
	createProjectCmd.Flags().StringVar(&createProjectDescription, "description", "", "optional project description")
	rootCmd.AddCommand(listProjectsCmd)
	rootCmd.AddCommand(createProjectCmd)
	rootCmd.AddCommand(projectViewCmd)
}
