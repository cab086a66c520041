// agentswarm runs the plan → code → review pipeline either interactively
// (one request per input line) or in batch mode over --request flags.
//
// Usage:
//
//	agentswarm [--config swarm.yaml] [--log-level debug]
//	agentswarm --batch --request "build X" --request "build Y"
//	agentswarm --duration 30s
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/hupe1980/agentswarm"
	"github.com/hupe1980/agentswarm/config"
	"github.com/hupe1980/agentswarm/frontend"
	"github.com/hupe1980/agentswarm/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	configPath string
	duration   time.Duration
	logLevel   string
	batch      bool
	requests   []string
}

func parseFlags(args []string, stderr io.Writer) (*flags, error) {
	var f flags
	flagSet := pflag.NewFlagSet("agentswarm", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&f.configPath, "config", "", "path to a YAML or JSON(C) config file")
	flagSet.DurationVar(&f.duration, "duration", 0, "stop the swarm after this long (0 = no limit)")
	flagSet.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	flagSet.BoolVar(&f.batch, "batch", false, "run non-interactively over --request values")
	flagSet.StringArrayVar(&f.requests, "request", nil, "request to submit in batch mode (repeatable)")

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if len(f.requests) > 0 && !f.batch {
		return nil, errors.New("--request requires --batch")
	}
	return &f, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	f, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}

	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: stderr,
	})
	logger.Info("configuration loaded", "path", f.configPath, "provider", cfg.Model.Provider)

	s, err := agentswarm.New(func(o *agentswarm.Options) {
		o.Config = cfg
		o.Logger = logger
	})
	if err != nil {
		return err
	}

	if f.batch {
		err = s.AddParticipant(frontend.NewBatch(cfg.User, s.Bus(), f.requests, func(o *frontend.BatchOptions) {
			o.Controller = cfg.Controller
			o.Output = stdout
			o.Logger = logger
		}))
	} else {
		err = s.AddParticipant(frontend.NewConsole(cfg.User, s.Bus(), stdin, stdout, func(o *frontend.ConsoleOptions) {
			o.Controller = cfg.Controller
			o.Status = s.Status
			o.History = s.History()
			o.Logger = logger
		}))
	}
	if err != nil {
		return err
	}

	if f.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.duration)
		defer cancel()
	}

	if err := s.Run(ctx); err != nil {
		return err
	}
	if abandoned := s.Abandoned(); len(abandoned) > 0 {
		fmt.Fprintf(stderr, "warning: participants did not stop within %s: %v\n", cfg.GracePeriod, abandoned)
	}
	return nil
}
