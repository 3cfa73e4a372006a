package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/wesm/projtrack/internal/store"
)

// snoozeOffsets are the reminder intervals offered during triage.
var snoozeOffsets = []struct {
	Label  string
	Offset time.Duration
}{
	{"in 1 day", 24 * time.Hour},
	{"in 1 week", 7 * 24 * time.Hour},
	{"in 1 month", 30 * 24 * time.Hour},
}

var triageCmd = &cobra.Command{
	Use:   "triage",
	Short: "Interactively sort unassigned communications into projects",
	Long: `Walk through every unassigned communication and decide what to do
with it: assign it to a project (existing or new), snooze it for later,
or ignore its sender entirely.

Ignoring a sender flags the contact, so all future mail from them is
recorded as ignored without prompting again.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := OpenStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		pending, err := st.ListCommunications(store.StatusUnassigned)
		if err != nil {
			return fmt.Errorf("list unassigned: %w", err)
		}
		if len(pending) == 0 {
			fmt.Println("Nothing to triage.")
			return nil
		}

		for i := range pending {
			quit, err := triageOne(st, &pending[i])
			if err != nil {
				return err
			}
			if quit {
				break
			}
		}
		return nil
	},
}

// triageOne prompts for a single communication. Returns true when the
// user chose to stop triaging.
func triageOne(st *store.Store, comm *store.Communication) (bool, error) {
	printCommunication(st, comm)

	projects, err := st.ListProjects()
	if err != nil {
		return false, fmt.Errorf("list projects: %w", err)
	}

	options := make([]huh.Option[string], 0, len(projects)+4)
	for _, p := range projects {
		options = append(options, huh.NewOption("Assign to: "+p.Name, "p:"+strconv.FormatInt(p.ID, 10)))
	}
	options = append(options,
		huh.NewOption("Create a new project", "new"),
		huh.NewOption("Decide later (snooze)", "snooze"),
		huh.NewOption("Never ask about this sender again", "ignore"),
		huh.NewOption("Skip for now", "skip"),
		huh.NewOption("Quit triage", "quit"),
	)

	var choice string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("What should happen to this communication?").
			Options(options...).
			Value(&choice),
	))
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return true, nil
		}
		return false, err
	}

	switch {
	case strings.HasPrefix(choice, "p:"):
		projectID, _ := strconv.ParseInt(strings.TrimPrefix(choice, "p:"), 10, 64)
		if _, err := st.Assign(comm.ID, projectID, 0); err != nil {
			return false, err
		}
		fmt.Println("Assigned.")
	case choice == "new":
		if err := triageCreateAndAssign(st, comm); err != nil {
			return false, err
		}
	case choice == "snooze":
		if err := triageSnooze(st, comm); err != nil {
			return false, err
		}
	case choice == "ignore":
		if comm.SenderContactID.Valid {
			if err := st.IgnoreSender(comm.SenderContactID.Int64); err != nil {
				return false, err
			}
		}
		if err := st.MarkIgnored(comm.ID); err != nil {
			return false, err
		}
		fmt.Println("Sender ignored for future communications.")
	case choice == "skip":
	case choice == "quit":
		return true, nil
	}
	return false, nil
}

func triageCreateAndAssign(st *store.Store, comm *store.Communication) error {
	var name string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("New project name").
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return fmt.Errorf("project name cannot be empty")
				}
				return nil
			}).
			Value(&name),
	))
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		return err
	}

	project, err := st.CreateProject(name, "")
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	if _, err := st.Assign(comm.ID, project.ID, 0); err != nil {
		return err
	}
	fmt.Printf("Created and assigned to project: %s\n", project.Name)
	return nil
}

func triageSnooze(st *store.Store, comm *store.Communication) error {
	options := make([]huh.Option[int], len(snoozeOffsets))
	for i, o := range snoozeOffsets {
		options[i] = huh.NewOption("Remind me "+o.Label, i)
	}

	var idx int
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[int]().
			Title("Snooze until when?").
			Options(options...).
			Value(&idx),
	))
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		return err
	}

	remindAt := time.Now().UTC().Add(snoozeOffsets[idx].Offset)
	if err := st.Snooze(comm.ID, remindAt); err != nil {
		return err
	}
	fmt.Printf("Snoozed until %s (%s).\n", remindAt.Format("2006-01-02 15:04"), snoozeOffsets[idx].Label)
	return nil
}

func printCommunication(st *store.Store, comm *store.Communication) {
	from := "Unknown"
	if comm.SenderContactID.Valid {
		if contact, err := st.GetContact(comm.SenderContactID.Int64); err == nil {
			from = contact.Name.String
			if from == "" {
				from = contact.Email.String
			}
		}
	}
	subject := comm.Subject.String
	if subject == "" {
		subject = "(no subject)"
	}

	fmt.Printf("\nFrom: %s\nSubject: %s\nWhen: %s\n", from, subject, comm.Timestamp.String)
	if comm.Snippet.Valid {
		fmt.Printf("Snippet: %s\n", comm.Snippet.String)
	}
}

func init() {
	rootCmd.AddCommand(triageCmd)
}
