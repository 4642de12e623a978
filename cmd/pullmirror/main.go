package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ligustah/pullmirror/internal/mirror"
	"github.com/ligustah/pullmirror/internal/walker"
)

// Exit codes
const (
	ExitSuccess         = 0
	ExitGeneralError    = 1
	ExitInvalidArgs     = 2
	ExitSourceNotAccess = 3
	ExitStorageError    = 5
	ExitWorkerFailed    = 8
	ExitInterrupted     = 130
)

var version = "dev"

// exitError carries a specific exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(stdout, stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitCode(err)
}

func exitCode(err error) int {
	var ee *exitError
	var werr *walker.Error
	var workerErr *mirror.WorkerError
	switch {
	case errors.As(err, &ee):
		return ee.code
	case errors.As(err, &werr):
		return ExitSourceNotAccess
	case errors.As(err, &workerErr):
		return ExitWorkerFailed
	default:
		return ExitGeneralError
	}
}

// globalFlags are shared by all subcommands.
type globalFlags struct {
	configFile string
	envFiles   []string
	logLevel   string
	logFormat  string
	logFile    string
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	var gf globalFlags

	root := &cobra.Command{
		Use:   "pullmirror",
		Short: "Mirror the remote counterparts of a local directory tree",
		Long: `pullmirror walks SOURCE_DIRECTORY, and for every file it finds fetches
BASE_URL + <relative path> into DESTINATION_DIRECTORY when the origin has it.

Configuration comes from flags, the environment (optionally seeded from a
.env file) and an optional YAML file, in that order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&gf.configFile, "config", "", "YAML configuration file")
	pf.StringSliceVar(&gf.envFiles, "env-file", nil, "env files to load (default: ./.env if present)")
	pf.StringVar(&gf.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	pf.StringVar(&gf.logFormat, "log-format", "", "log format (console, json)")
	pf.StringVar(&gf.logFile, "log-file", "", "also write logs to this rotating file")

	root.AddCommand(
		newRunCommand(&gf, stderr),
		newPlanCommand(&gf),
		newVersionCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pullmirror %s\n", version)
		},
	}
}
