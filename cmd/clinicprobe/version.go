package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ahrdadan/clinicprobe/internal/config"
)

func newVersionCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// Skip configuration so a bad environment still shows the version.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.stdout, "%s v%s\n", config.AppName, config.Version)
		},
	}
}
