package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/usememos/saaskit/internal/chat"
	"github.com/usememos/saaskit/internal/provider"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send one message and print the reply as it streams",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}
		setLogger(p, os.Stderr, false)

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		providers, err := provider.FromProfile(ctx, p, nil)
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("provider")
		model, _ := cmd.Flags().GetString("model")
		adapter, err := providers.Adapter(name)
		if err != nil {
			return err
		}

		stream, err := adapter.Stream(ctx, []chat.Message{
			{Role: chat.RoleUser, Content: strings.Join(args, " ")},
		}, model)
		if err != nil {
			return err
		}
		defer stream.Close()

		out := cmd.OutOrStdout()
		for chunk := range stream.All() {
			fmt.Fprint(out, chunk)
		}
		fmt.Fprintln(out)
		if err := stream.Err(); err != nil {
			return errors.Wrapf(err, "reply stopped after %d of %d words", stream.Emitted(), stream.Len())
		}
		return nil
	},
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the agents of the configured AgentOS",
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}
		setLogger(p, os.Stderr, false)

		providers, err := provider.FromProfile(cmd.Context(), p, nil)
		if err != nil {
			return err
		}
		if providers.Agno == nil {
			return errors.New("agno-url is not configured")
		}
		agents, err := providers.Agno.ListAgents(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tMODEL\tDESCRIPTION")
		for _, agent := range agents {
			fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", agent.ID, agent.Name, agent.Model, agent.Description)
		}
		return w.Flush()
	},
}

func init() {
	chatCmd.Flags().String("provider", "", "chat provider: "+strings.Join([]string{provider.GenAI, provider.Agno, provider.OpenRouter}, ", "))
	chatCmd.Flags().String("model", "", "model, or agent id for agno")
}
