// Command expensectl is an operator tool over the expense backend API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"expensedash/internal/api"
	"expensedash/internal/config"
)

var errSessionExpired = errors.New("session expired, run `expensectl login`")

const usage = `Usage: expensectl [-api URL] [-token-file PATH] <command> [flags]

Commands:
  login -email EMAIL [-password PASSWORD]
  logout
  me
  expenses [-month YYYY-MM]
  report [-month YYYY-MM]
  lambda status | trigger
  scheduler status | start | stop | set -day D -hour H -minute M
  thresholds [set Category=amount ...]
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is what every subcommand runs against.
type app struct {
	client *api.Client
	tokens tokenFile
	stdin  io.Reader
	stderr io.Writer
	p      *printer
	now    func() time.Time
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("expensectl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }

	baseURL := fs.String("api", envOr("API_BASE_URL", config.Defaults().APIBaseURL), "Backend API base URL")
	tokenPath := fs.String("token-file", defaultTokenPath(), "Where the bearer token is kept")
	timeout := fs.Duration("timeout", config.Defaults().APITimeout, "Backend request timeout")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{
		client: api.New(*baseURL, *timeout),
		tokens: tokenFile{path: *tokenPath},
		stdin:  stdin,
		stderr: stderr,
		p:      newPrinter(stdout),
		now:    time.Now,
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	var err error
	switch cmd {
	case "login":
		return a.login(ctx, rest)
	case "logout":
		return a.logout()
	case "me":
		err = a.me(ctx)
	case "expenses":
		err = a.expenses(ctx, rest)
	case "report":
		err = a.report(ctx, rest)
	case "lambda":
		err = a.lambda(ctx, rest)
	case "scheduler":
		err = a.scheduler(ctx, rest)
	case "thresholds":
		err = a.thresholds(ctx, rest)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
	return a.checkSession(err)
}

// checkSession drops the stored token once the backend rejects it.
func (a *app) checkSession(err error) error {
	if !api.IsUnauthorized(err) {
		return err
	}
	if rmErr := a.tokens.Remove(); rmErr != nil {
		fmt.Fprintf(a.stderr, "Warning: %v\n", rmErr)
	}
	return errSessionExpired
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
