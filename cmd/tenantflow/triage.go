package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/smallnest/tenantflow/spamtriage"
	"github.com/spf13/cobra"
)

func (c *cli) newTriageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "triage [item.json]",
		Short: "Triage one inbound message for spam",
		Long: `Read a message as JSON from the file or from stdin and print the decision.

The message has the fields id, sender, subject, body, links, attachments
and headers. A run that fails prints the SYSTEM_ERROR decision and exits
non-zero.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			var item spamtriage.Item
			if err := json.NewDecoder(in).Decode(&item); err != nil {
				return fmt.Errorf("decode item: %w", err)
			}

			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			decision, runErr := a.RunSpamTriage(cmd.Context(), item)
			if err := printJSON(cmd.OutOrStdout(), decision); err != nil {
				return err
			}
			return runErr
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
