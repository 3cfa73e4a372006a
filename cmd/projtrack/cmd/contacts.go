package cmd

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wesm/projtrack/internal/query"
)

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "List all contacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := OpenStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		contacts, err := st.ListContacts()
		if err != nil {
			return fmt.Errorf("list contacts: %w", err)
		}
		if len(contacts) == 0 {
			fmt.Println("No contacts yet. Ingest some mail first.")
			return nil
		}
		for _, c := range contacts {
			label := c.Name.String
			if label == "" {
				label = "(no name)"
			}
			line := fmt.Sprintf("[%d] %s", c.ID, label)
			if c.Email.Valid {
				line += "  <" + c.Email.String + ">"
			}
			if c.Ignored {
				line += "  [ignored]"
			}
			fmt.Println(line)
		}
		return nil
	},
}

var contactViewFlat bool

var contactViewCmd = &cobra.Command{
	Use:   "contact-view <contact-id>",
	Short: "Show everything with a person, grouped by project",
	Long: `Show every communication linked to a contact.

By default the timeline is partitioned by project; --flat shows a single
timeline across all projects instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid contact id %q", args[0])
		}

		st, err := OpenStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		contact, err := st.GetContact(id)
		if err != nil {
			return err
		}
		label := contact.Name.String
		if label == "" {
			label = contact.Email.String
		}

		engine := query.NewEngine(st)

		if contactViewFlat {
			items, err := engine.ContactViewFlat(id)
			if err != nil {
				return err
			}
			fmt.Printf("Contact [%d] %s — %d communication(s)\n", contact.ID, label, len(items))
			for _, item := range items {
				fmt.Println("  " + formatItem(item))
			}
			return nil
		}

		groups, err := engine.ContactViewGrouped(id)
		if err != nil {
			return err
		}
		fmt.Printf("Contact [%d] %s — %d project(s)\n", contact.ID, label, len(groups))

		// Stable output order for scripts and eyeballs alike.
		ids := make([]int64, 0, len(groups))
		for pid := range groups {
			ids = append(ids, pid)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		for _, pid := range ids {
			g := groups[pid]
			fmt.Printf("\n%s (%d):\n", g.Project.Name, len(g.Communications))
			for _, item := range g.Communications {
				fmt.Println("  " + formatItem(item))
			}
		}
		return nil
	},
}

func init() {
	contactViewCmd.Flags().BoolVar(&contactViewFlat, "flat", false, "single timeline instead of grouping by project")
	rootCmd.AddCommand(contactsCmd)
	rootCmd.AddCommand(contactViewCmd)
}
