package main

import (
	"fmt"
	"strings"

	"github.com/smallnest/tenantflow/app"
	"github.com/smallnest/tenantflow/graph"
	"github.com/spf13/cobra"
)

// drawer is implemented by every graph.Exporter instantiation.
type drawer interface {
	DrawMermaid() string
	DrawDOT() string
	DrawASCII() string
}

var graphNames = []string{"chat", "spam", "ingest"}

func (c *cli) newGraphCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:       "graph <" + strings.Join(graphNames, "|") + ">",
		Short:     "Print a workflow graph",
		Long:      `Print the nodes and edges of a compiled workflow as Mermaid, Graphviz DOT or an ASCII tree.`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: graphNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := exporterFor(a, args[0])
			if err != nil {
				return err
			}

			var out string
			switch format {
			case "mermaid":
				out = d.DrawMermaid()
			case "dot":
				out = d.DrawDOT()
			case "ascii":
				out = d.DrawASCII()
			default:
				return fmt.Errorf("unknown format %q, want mermaid, dot or ascii", format)
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			if !strings.HasSuffix(out, "\n") {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "mermaid", "output format: mermaid, dot or ascii")
	return cmd
}

func exporterFor(a *app.App, name string) (drawer, error) {
	switch name {
	case "chat":
		agent, err := a.Agent(a.Config().Provider())
		if err != nil {
			return nil, err
		}
		return graph.NewExporter(agent.Runnable()), nil
	case "spam":
		return graph.NewExporter(a.Triage().Runnable()), nil
	case "ingest":
		return graph.NewExporter(a.Ingestion().Runnable()), nil
	default:
		return nil, fmt.Errorf("unknown graph %q", name)
	}
}
