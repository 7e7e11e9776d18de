package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) newThreadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "Inspect or delete saved conversations",
	}

	var asJSON bool
	show := &cobra.Command{
		Use:   "show <thread-id>",
		Short: "Print the messages of a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			messages, err := a.ThreadHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, messages)
			}
			for _, m := range messages {
				switch {
				case len(m.ToolCalls) > 0:
					for _, tc := range m.ToolCalls {
						fmt.Fprintf(out, "%s: call %s(%s)\n", m.Role, tc.Name, tc.Arguments)
					}
				case m.Name != "":
					fmt.Fprintf(out, "%s[%s]: %s\n", m.Role, m.Name, m.Content)
				default:
					fmt.Fprintf(out, "%s: %s\n", m.Role, m.Content)
				}
			}
			return nil
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "print the messages as JSON")

	del := &cobra.Command{
		Use:   "delete <thread-id>",
		Short: "Delete a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ok, err := a.DeleteThread(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("thread %s not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted thread %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(show, del)
	return cmd
}
