package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ahrdadan/clinicprobe/internal/browser"
)

func newInstallCmd(c *cli) *cobra.Command {
	var withDeps bool

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Download the browser the selected engine drives",
		Long: `Downloads Chromium for the rod engine, or the playwright driver and its
Chromium build for the playwright engine. --with-deps also installs the
shared libraries Chromium needs through the system package manager.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := browser.ParseEngine(c.cfg.Browser.Engine)
			if err != nil {
				return err
			}

			switch engine {
			case browser.EnginePlaywright:
				if err := browser.InstallPlaywright(withDeps); err != nil {
					return err
				}
				fmt.Fprintln(c.stdout, "Playwright chromium installed")
			default:
				path, err := browser.InstallChrome(cmd.Context(), c.cfg.Browser.ChromeRevision, withDeps)
				if err != nil {
					return err
				}
				fmt.Fprintln(c.stdout, path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withDeps, "with-deps", false, "Also install Chromium's system libraries")
	return cmd
}
