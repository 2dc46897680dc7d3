package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ahrdadan/clinicprobe/internal/browser"
	"github.com/ahrdadan/clinicprobe/internal/config"
	"github.com/ahrdadan/clinicprobe/internal/journey"
	"github.com/ahrdadan/clinicprobe/internal/logging"
)

const finishedMessage = "Verification script finished."

// cli carries what every subcommand shares once flags are parsed.
type cli struct {
	v      *viper.Viper
	cfg    *config.Config
	logger *zap.Logger

	stdout io.Writer
	stderr io.Writer

	newLauncher func(browser.Options, *zap.Logger) (browser.Launcher, error)
}

func newCLI(stdout, stderr io.Writer) *cli {
	return &cli{
		v:           config.NewViper(),
		stdout:      stdout,
		stderr:      stderr,
		newLauncher: browser.NewLauncher,
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   config.AppName,
		Short: "Browser verification of the HSMS clinic web app",
		Long: `clinicprobe signs up a new patient and completes their profile, then signs
in as a doctor and as a nurse and checks what each role can see. A screenshot
is saved after each check.

Run without a subcommand to verify once against --base-url.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
		RunE: c.verify,
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(newServeCmd(c), newInstallCmd(c), newVersionCmd(c))
	return root
}

// setup binds flags, loads configuration and builds the logger.
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	if err := config.BindFlags(c.v, cmd.Flags()); err != nil {
		return err
	}
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}

	cfg, err := config.Load(c.v, configFile)
	if err != nil {
		return err
	}
	c.cfg = cfg

	logger, err := logging.New(cfg.Log.Format, cfg.Log.Verbose)
	if err != nil {
		return err
	}
	c.logger = logger
	return nil
}

// verify runs the scenario catalogue once.
func (c *cli) verify(cmd *cobra.Command, args []string) error {
	opts := c.cfg.BrowserOptions()
	launcher, err := c.newLauncher(opts, c.logger)
	if err != nil {
		return err
	}

	runner := journey.NewRunner(launcher, journey.Options{
		ArtifactsDir:  c.cfg.ArtifactsDir,
		ExpectTimeout: c.cfg.ExpectTimeout,
		Logger:        c.logger,
	})

	report, runErr := runner.Run(cmd.Context(), c.cfg.Plan().Scenarios())

	if c.cfg.Manifest != "" {
		m := journey.NewManifest(report, c.cfg.BaseURL, string(opts.Engine), c.cfg.ArtifactsDir)
		if err := journey.WriteManifest(c.cfg.Manifest, m); err != nil {
			if runErr != nil {
				c.logger.Error("failed to write manifest", zap.Error(err))
				return runErr
			}
			return err
		}
		c.logger.Info("Manifest written", zap.String("path", c.cfg.Manifest))
	}

	if runErr != nil {
		return runErr
	}

	fmt.Fprintln(c.stdout, finishedMessage)
	return nil
}
