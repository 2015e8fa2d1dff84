// Command armctl drives a six-axis robotic arm over a serial link.
//
// It runs the mandatory startup sequence (health probes, then homing),
// starts live coordinate monitoring, and then either streams coordinates,
// executes a one-off command, or opens an interactive prompt.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/robosix/armlink/arm"
	"github.com/robosix/armlink/internal/config"
	"github.com/robosix/armlink/logger"
)

type Options struct {
	Config      string  `long:"config" description:"YAML configuration file (flags override file values)"`
	Interval    float64 `long:"interval" description:"Coordinate refresh interval in seconds (default: 0.5)"`
	Verbose     bool    `short:"v" long:"verbose" description:"Enable verbose debug logging"`
	Command     string  `long:"command" description:"Send a one-off command after initialization (e.g. 'G30' or 'M02 F200')"`
	Interactive bool    `long:"interactive" description:"Open an interactive prompt after startup for manual commands"`

	Positional struct {
		Port string `positional-arg-name:"port" description:"Serial port connected to the arm (e.g. /dev/ttyUSB0)"`
	} `positional-args:"yes"`
}

func main() {
	os.Exit(run())
}

func run() int {
	var opts Options

	parser := flags.NewParser(&opts, flags.Default)
	parser.LongDescription = "Six-axis robotic arm controller"

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return 0
		}
		return 1
	}

	port, sessionOpts, startupCmd, err := buildSession(&opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := arm.Open(ctx, port, sessionOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, arm.ErrSessionFaulted) || errors.Is(err, arm.ErrTimeout) {
			fmt.Fprintln(os.Stderr, "Reset the arm controller and re-run the program.")
		}
		return 1
	}
	defer sess.Close()

	id := sess.Identity()
	fmt.Printf("Serial: %s  Firmware: %s\n", id.SerialNumber, id.FirmwareVersion)

	if err := sess.Monitor().Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if startupCmd != "" {
		resp, err := sess.ExecuteRaw(ctx, startupCmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error executing %q: %v\n", startupCmd, err)
			return 1
		}
		fmt.Printf("Response to %q: %s\n", startupCmd, resp.Raw)
	}

	if opts.Interactive {
		return runInteractive(ctx, sess)
	}

	return streamCoordinates(ctx, sess)
}

// buildSession merges the config file and command line into session
// options. Flags win over file values; unset knobs keep library defaults.
func buildSession(opts *Options) (port string, sessionOpts []arm.SessionOption, startupCmd string, err error) {
	verbose := opts.Verbose
	interval := time.Duration(opts.Interval * float64(time.Second))
	startupCmd = opts.Command
	port = opts.Positional.Port

	if opts.Config != "" {
		cfg, err := config.Load(opts.Config)
		if err != nil {
			return "", nil, "", err
		}

		a := cfg.Arm
		if port == "" {
			port = a.Port
		}
		if interval == 0 && a.PollIntervalMs > 0 {
			interval = time.Duration(a.PollIntervalMs) * time.Millisecond
		}
		if a.CommandTimeoutMs > 0 {
			sessionOpts = append(sessionOpts,
				arm.WithCommandTimeout(time.Duration(a.CommandTimeoutMs)*time.Millisecond))
		}
		if a.HomingTimeoutMs > 0 {
			sessionOpts = append(sessionOpts,
				arm.WithHomingTimeout(time.Duration(a.HomingTimeoutMs)*time.Millisecond))
		}
		if a.OpenResetDelayMs > 0 {
			sessionOpts = append(sessionOpts,
				arm.WithOpenResetDelay(time.Duration(a.OpenResetDelayMs)*time.Millisecond))
		}
		if a.RetryLimit != nil {
			sessionOpts = append(sessionOpts, arm.WithRetryLimit(*a.RetryLimit))
		}
		if startupCmd == "" {
			startupCmd = a.StartupCommand
		}
		verbose = verbose || a.Verbose
	}

	if port == "" {
		return "", nil, "", errors.New("no serial port given (positional argument or arm.port in --config)")
	}

	if verbose {
		logger.SetLevel(logger.DebugLevel)
	}
	sessionOpts = append(sessionOpts, arm.WithLogger(logger.GetLogger()))

	if interval > 0 {
		sessionOpts = append(sessionOpts, arm.WithPollInterval(interval))
	}

	return port, sessionOpts, startupCmd, nil
}

// streamCoordinates prints every monitored pose until interrupted.
func streamCoordinates(ctx context.Context, sess *arm.Session) int {
	sub := sess.Monitor().Subscribe(8)
	defer sub.Cancel()

	fmt.Println("Monitoring coordinates. Press Ctrl+C to exit.")

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nStopping controller...")
			return 0

		case sample := <-sub.Samples():
			if sample.Missed {
				fmt.Printf("[%d] missed sample: %v\n", sample.Seq, sample.Err)
				continue
			}
			fmt.Printf("[%d] %s\n", sample.Seq, sample.Pose.String())

		case <-time.After(time.Second):
			// No samples flowing; a faulted session requires operator action.
			if sess.State().IsFaulted() {
				fmt.Fprintln(os.Stderr, "Session faulted. Reset the arm controller and re-run the program.")
				return 1
			}
		}
	}
}
