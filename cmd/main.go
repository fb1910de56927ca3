package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"grocery-cli/internal/app"
	"grocery-cli/internal/types"
)

// cli is the state shared by every subcommand
type cli struct {
	app      *app.App
	out      io.Writer
	json     bool
	prompter *stdinPrompter
}

type command struct {
	summary string
	run     func(ctx context.Context, c *cli, args []string) error
}

var commands = map[string]command{
	"providers":  {"List available providers", runProviders},
	"login":      {"Log in through the browser (MFA codes are read from stdin)", runLogin},
	"logout":     {"Discard the saved session", runLogout},
	"status":     {"Check whether the saved session still works", runStatus},
	"search":     {"Search products", runSearch},
	"product":    {"Show one product", runProduct},
	"categories": {"Show the category tree", runCategories},
	"basket":     {"Show the basket", runBasket},
	"add":        {"Add a product to the basket", runAdd},
	"update":     {"Set a basket item's quantity (0 removes it)", runUpdate},
	"remove":     {"Remove a basket item", runRemove},
	"clear":      {"Remove every basket item (requires -force)", runClear},
	"slots":      {"List delivery slots", runSlots},
	"book":       {"Book a delivery slot", runBook},
	"checkout":   {"Check out (-dry-run previews, -confirm allows API orders, payment is always completed by you)", runCheckout},
	"orders":     {"List order history", runOrders},
	"compare":    {"Search several providers side by side", runCompare},
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: groc [-config path] [-verbose] [-json] <command> [flags]\n\nCommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-11s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(os.Stderr, "\nRun 'groc <command> -h' for command flags.\n")
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configFlag  = flag.String("config", "", "Config file (default ~/.groc/config.yaml)")
		verboseFlag = flag.Bool("verbose", false, "Enable verbose logging")
		jsonFlag    = flag.Bool("json", false, "Print results as JSON")
	)
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		return 2
	}
	name := flag.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", name)
		usage()
		return 2
	}

	prompter := newStdinPrompter(os.Stdin, os.Stderr)
	a, err := app.New(app.Options{
		ConfigPath: *configFlag,
		Verbose:    *verboseFlag,
		Prompter:   prompter,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer a.Close()

	// Cancellation closes any open browser
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{app: a, out: os.Stdout, json: *jsonFlag, prompter: prompter}
	if err := cmd.run(ctx, c, flag.Args()[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		reportError(a, err)
		return exitCode(err)
	}
	return 0
}

// reportError prints the failure with a hint for the kinds a user can act on
func reportError(a *app.App, err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)

	var unknown *types.UnknownProviderError
	var precondition *types.PreconditionError
	switch {
	case types.IsAuthError(err):
		fmt.Fprintln(os.Stderr, "hint: the session is missing or expired, run 'groc login -provider <name>'")
	case errors.As(err, &unknown):
		fmt.Fprintln(os.Stderr, "hint: run 'groc providers' to list provider names")
	case errors.As(err, &precondition) && precondition.Reason == types.ReasonMinimumSpend:
		fmt.Fprintln(os.Stderr, "hint: add more items to the basket before booking or checking out")
	case errors.Is(err, types.ErrOrderAlreadyPlaced):
		fmt.Fprintln(os.Stderr, "hint: pass -force to check out again")
	case errors.Is(err, types.ErrAutomation):
		fmt.Fprintf(os.Stderr, "hint: the page may have changed, screenshots are in %s\n", a.Config.DiagnosticsDir)
	}
}

func exitCode(err error) int {
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		return 2
	}
	if errors.Is(err, context.Canceled) {
		return 130
	}
	return 1
}

// usageError is a bad invocation of a subcommand
type usageError struct {
	msg string
}

func (e *usageError) Error() string {
	return e.msg
}

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}
