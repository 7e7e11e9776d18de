package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/smallnest/tenantflow/app"
	"github.com/smallnest/tenantflow/llm"
	"github.com/spf13/cobra"
)

type chatFlags struct {
	thread   string
	provider string
	system   string
	stream   bool
}

func (c *cli) newChatCmd() *cobra.Command {
	var f chatFlags
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the chat agent",
		Long: `Send one message to the chat agent, or start an interactive session when
no message is given. Turns sharing a --thread id continue the same
conversation; an interactive session without one gets a fresh id.

Examples:
  tenantflow chat "what is the refund policy?"
  tenantflow chat --thread support-42 --stream "and for annual plans?"
  tenantflow chat --provider ollama`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			req := app.ChatRequest{ThreadID: f.thread, SystemPrompt: f.system}
			if f.provider != "" {
				if req.Provider, err = llm.ParseProvider(f.provider); err != nil {
					return err
				}
			}

			if len(args) > 0 {
				req.Text = strings.Join(args, " ")
				return chatTurn(cmd, a, req, f.stream)
			}

			if req.ThreadID == "" {
				req.ThreadID = uuid.NewString()
			}
			return chatSession(cmd, a, req, f.stream)
		},
	}
	cmd.Flags().StringVarP(&f.thread, "thread", "t", "", "conversation thread id")
	cmd.Flags().StringVarP(&f.provider, "provider", "p", "", "model provider ("+providerList()+")")
	cmd.Flags().StringVar(&f.system, "system", "", "system prompt for this conversation")
	cmd.Flags().BoolVarP(&f.stream, "stream", "s", false, "print the answer as it is generated")
	return cmd
}

func providerList() string {
	names := make([]string, 0, len(llm.Providers()))
	for _, p := range llm.Providers() {
		names = append(names, string(p))
	}
	return strings.Join(names, ", ")
}

func chatTurn(cmd *cobra.Command, a *app.App, req app.ChatRequest, stream bool) error {
	out := cmd.OutOrStdout()
	if !stream {
		answer, err := a.Run(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, answer)
		return nil
	}

	s, err := a.RunStream(cmd.Context(), req)
	if err != nil {
		return err
	}
	for d := range s.Deltas() {
		fmt.Fprint(out, d)
	}
	fmt.Fprintln(out)
	return s.Err()
}

func chatSession(cmd *cobra.Command, a *app.App, req app.ChatRequest, stream bool) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "thread %s, type exit to quit\n", req.ThreadID)

	sc := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		text := strings.TrimSpace(sc.Text())
		switch text {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		req.Text = text
		if err := chatTurn(cmd, a, req, stream); err != nil {
			return err
		}
	}
}
