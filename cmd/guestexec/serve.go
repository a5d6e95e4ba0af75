package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loykin/guestexec"
)

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [agent.toml]",
		Short: "Run the executor agent",
		Long: `Run the agent: listen on the configured unix socket for host
requests and dispatch them on the event loop until interrupted.

Examples:
  guestexec serve --config=/etc/guestexec/agent.toml
  guestexec serve agent.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := globalFlags.ConfigPath
			if len(args) > 0 {
				configPath = args[0]
			}
			if configPath == "" {
				return fmt.Errorf("config file required. Use --config=agent.toml or provide as argument")
			}
			return runServe(configPath)
		},
	}
	return cmd
}

func runServe(configPath string) error {
	cfg, err := guestexec.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	agent, err := guestexec.NewAgent(cfg, Version)
	if err != nil {
		return fmt.Errorf("error building agent: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return agent.Run(ctx)
}
