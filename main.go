package main

import (
	"os"

	"taskboard/logging"

	"github.com/spf13/cobra"
)

const systemName = "taskboard"

func main() {
	root := &cobra.Command{
		Use:           systemName,
		Short:         "Kanban task board backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd())

	if err := root.Execute(); err != nil {
		logging.Logger.Errorf("Event ID: COMMAND_FAILED, Description: %v", err)
		os.Exit(1)
	}
}
