// Command harvester manages the harvesting ledger from the terminal.
//
// Usage:
//
//	harvester <command> [flags] [args]
//
// Run "harvester help" for the list of commands.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"harvester/internal/backend"
	"harvester/internal/cli"
	"harvester/internal/config"
	"harvester/internal/core"
	"harvester/internal/log"
)

// env is what every command runs against.
type env struct {
	cfg    *config.Config
	ledger *backend.Ledger
	logger *log.Logger
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	now    func() time.Time
}

type command struct {
	name    string
	args    string
	summary string
	run     func(ctx context.Context, e *env, args []string) error
}

var errUsage = errors.New("usage")

func main() {
	cli.LoadEnvFile()
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, log.ComponentCLI)

	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage(os.Stdout)
		return
	}
	if lookup(args[0]) == nil {
		fmt.Fprintf(os.Stderr, "harvester: unknown command %q\n\n", args[0])
		printUsage(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	ledger, err := backend.NewFactory().CreateLedger(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to open ledger", log.FieldError, err)
		os.Exit(1)
	}

	e := &env{
		cfg:    cfg,
		ledger: ledger,
		logger: logger,
		in:     os.Stdin,
		out:    os.Stdout,
		errOut: os.Stderr,
		now:    time.Now,
	}
	err = run(ctx, e, args)
	if cerr := ledger.Close(); cerr != nil {
		logger.Warn("Failed to close ledger", log.FieldError, cerr)
	}
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
	case errors.Is(err, errUsage):
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "harvester:", err)
		os.Exit(1)
	}
}

// run dispatches args[0]. Backing out of a confirmation is not an error.
func run(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		printUsage(e.errOut)
		return errUsage
	}
	cmd := lookup(args[0])
	if cmd == nil {
		fmt.Fprintf(e.errOut, "harvester: unknown command %q\n", args[0])
		return errUsage
	}
	err := cmd.run(ctx, e, args[1:])
	if errors.Is(err, core.ErrUserCancelled) {
		fmt.Fprintln(e.errOut, "Cancelled.")
		return nil
	}
	return err
}

func lookup(name string) *command {
	for i := range commands {
		if commands[i].name == name {
			return &commands[i]
		}
	}
	return nil
}

func isHelp(arg string) bool {
	return arg == "help" || arg == "-h" || arg == "--help"
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: harvester <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-15s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, `Run "harvester <command> -h" for the flags of a command.`)
}

// newFlagSet returns a flag set that reports errors instead of exiting.
func newFlagSet(e *env, c string) *flag.FlagSet {
	fs := flag.NewFlagSet(c, flag.ContinueOnError)
	fs.SetOutput(e.errOut)
	if cmd := lookup(c); cmd != nil {
		fs.Usage = func() {
			fmt.Fprintf(e.errOut, "Usage: harvester %s [flags] %s\n", cmd.name, cmd.args)
			fs.PrintDefaults()
		}
	}
	return fs
}

// oneArg parses flags and returns the single positional argument.
func oneArg(fs *flag.FlagSet, args []string, what string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return "", fmt.Errorf("%w: expected %s", errUsage, what)
	}
	return fs.Arg(0), nil
}
