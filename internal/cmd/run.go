package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/comalice/commando"
	"github.com/comalice/commando/internal/config"
	"github.com/comalice/commando/internal/core"
	"github.com/comalice/commando/internal/extensibility"
	"github.com/comalice/commando/internal/logging"
	"github.com/comalice/commando/internal/production"
	"github.com/comalice/commando/internal/robot"
	"github.com/comalice/commando/internal/telemetry"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive the simulated robot from the console",
	Long: `Start a pilot on the simulated robot and read commands from stdin,
one per line. A periodic bump check runs while the robot moves.

Examples:
  # Interactive session
  commando run

  # Scripted session, stopping every request with zero wheels
  printf 'forward 40\nleft 10\nstop\n' | commando run --halt-on-stop`,
	RunE: runRun,
}

var runShowTransitions bool

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVarP(&runShowTransitions, "transitions", "t", false, "Print every state transition")
	runCmd.Flags().Bool("halt-on-stop", false, "Zero the wheels on every stop request")
	runCmd.Flags().Duration("bump-interval", 0, "Bump check period (0 keeps the configured value)")
	runCmd.Flags().String("persist", "", "Snapshot store: none, json, yaml or bolt")
	_ = viper.BindPFlag("pilot.halt_on_stop", runCmd.Flags().Lookup("halt-on-stop"))
	_ = viper.BindPFlag("persistence.kind", runCmd.Flags().Lookup("persist"))
}

func runRun(cmd *cobra.Command, args []string) error {
	if d, _ := cmd.Flags().GetDuration("bump-interval"); d > 0 {
		viper.Set("bump.interval", d)
	}
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	if viper.ConfigFileUsed() != "" {
		config.Watch(viper.GetViper(), func(c *config.Config) {
			logger.SetLevel(c.Logging.Level)
			logger.Info("configuration reloaded", "level", c.Logging.Level)
		}, func(err error) {
			logger.Warn("configuration reload rejected", "error", err)
		})
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	shutdown, err := telemetry.Setup(ctx, telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	persister, closePersister, err := openPersister(cfg.Persistence)
	if err != nil {
		return err
	}
	defer closePersister()

	dispatcher, err := core.NewDispatcher(core.DefaultHandlers())
	if err != nil {
		return err
	}
	runner := extensibility.NewTracingActionRunner(
		extensibility.NewLoggingActionRunner(dispatcher, logger),
		telemetry.Tracer(),
	)

	records := make(chan core.TransitionRecord, 64)
	engineOpts := []core.Option{
		core.WithActionRunner(runner),
		core.WithPublisher(production.NewChannelPublisher(records)),
		core.WithVisualizer(&production.DefaultVisualizer{}),
	}
	if persister != nil {
		engineOpts = append(engineOpts, core.WithPersister(persister))
	}

	sim := robot.NewSimulator(
		robot.WithMaxPower(cfg.Robot.MaxPower),
		robot.WithBumpEvery(cfg.Robot.BumpEvery),
		robot.WithLogger(logger),
	)
	pilot := commando.New(
		commando.WithName(cfg.Pilot.Mailbox),
		commando.WithCapacity(cfg.Pilot.QueueCapacity),
		commando.WithActuator(sim),
		commando.WithLogger(logger),
		commando.WithHaltOnStop(cfg.Pilot.HaltOnStop),
		commando.WithEngineOptions(engineOpts...),
	)
	if err := pilot.Create(ctx); err != nil {
		return err
	}
	defer pilot.Destroy()

	out := &lockedWriter{w: cmd.OutOrStdout()}
	fmt.Fprintf(out, "pilot %s on %s (type 'help' for commands)\n", pilot.ID(), pilot.Name())

	if cfg.Bump.Interval > 0 {
		ticker := extensibility.NewBumpTicker(cfg.Bump.Interval)
		defer ticker.Stop()
		if err := pilot.Attach(ticker); err != nil {
			return err
		}
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lines := scanLines(cmd.InOrStdin(), pilot.Done())

	var g errgroup.Group
	g.Go(func() error {
		for r := range records {
			if runShowTransitions {
				fmt.Fprintf(out, "%s --%s/%s--> %s\n", r.From, r.Event, r.Action, r.To)
			}
		}
		return nil
	})
	g.Go(func() error {
		return console(ctx, pilot, lines, out)
	})
	g.Go(func() error {
		select {
		case <-sigCtx.Done():
			fmt.Fprintln(out, "stopping...")
			if err := pilot.RequestStop(context.Background()); err != nil && !errors.Is(err, core.ErrTransport) {
				return err
			}
		case <-pilot.Done():
		}
		return nil
	})
	g.Go(func() error {
		return pilot.Wait(context.Background())
	})
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Fprintf(out, "pilot terminated: %s\n", pilot.Velocity())
	return nil
}

// console executes lines until the pilot exits. End of input stops the
// pilot.
func console(ctx context.Context, pilot *commando.Pilot, lines <-chan string, out io.Writer) error {
	for {
		select {
		case <-pilot.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := pilot.RequestStop(ctx); err != nil && !errors.Is(err, core.ErrTransport) {
					return err
				}
				return nil
			}
			if err := execute(ctx, pilot, line, out); err != nil {
				if errors.Is(err, core.ErrTransport) {
					return nil
				}
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
	}
}

func execute(ctx context.Context, pilot *commando.Pilot, line string, out io.Writer) error {
	c, err := parseCommand(line)
	if err != nil {
		return err
	}
	switch c.kind {
	case cmdVelocity:
		return pilot.RequestVelocity(ctx, c.direction, c.power)
	case cmdStop:
		return pilot.RequestStop(ctx)
	case cmdEmergencyStop:
		return pilot.EmergencyStop(ctx)
	case cmdBump:
		return pilot.RequestBumpCheck(ctx)
	case cmdState:
		fmt.Fprintf(out, "%s %s\n", pilot.State(), pilot.Velocity())
	case cmdHelp:
		fmt.Fprintln(out, consoleHelp)
	}
	return nil
}

// scanLines feeds non-empty input lines to a channel closed at end of input.
// It gives up once done is closed; a read already blocked on r is abandoned.
func scanLines(r io.Reader, done <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			select {
			case lines <- line:
			case <-done:
				return
			}
		}
	}()
	return lines
}

// openPersister builds the configured snapshot store. The returned closer
// is never nil.
func openPersister(pc config.PersistenceConfig) (core.Persister, func(), error) {
	noop := func() {}
	switch pc.Kind {
	case config.PersistJSON:
		p, err := production.NewJSONPersister(pc.Path)
		return p, noop, err
	case config.PersistYAML:
		p, err := production.NewYAMLPersister(pc.Path)
		return p, noop, err
	case config.PersistBolt:
		if err := os.MkdirAll(pc.Path, 0o755); err != nil {
			return nil, noop, fmt.Errorf("mkdir %s: %w", pc.Path, err)
		}
		p, err := production.OpenBoltPersister(filepath.Join(pc.Path, production.BoltFileName))
		if err != nil {
			return nil, noop, err
		}
		return p, func() { _ = p.Close() }, nil
	default:
		return nil, noop, nil
	}
}

// lockedWriter serializes writes from the console and transition printers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
