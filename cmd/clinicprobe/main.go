// Command clinicprobe drives a browser through the HSMS clinic app and checks
// that sign-up, profile completion and role gating behave.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, newCLI(os.Stdout, os.Stderr), os.Args[1:])
	stop()
	os.Exit(code)
}

// execute runs the command line and maps any error to exit status 1.
func execute(ctx context.Context, c *cli, args []string) int {
	cmd := newRootCmd(c)
	cmd.SetArgs(args)
	cmd.SetOut(c.stdout)
	cmd.SetErr(c.stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(c.stderr, err)
		return 1
	}
	return 0
}
