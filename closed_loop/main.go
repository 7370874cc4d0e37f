package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"carla-autocontrol/closed_loop/route"
	"carla-autocontrol/utils"
)

// newFlagSet declares the command line. Flags that map onto RunConfig only
// take effect when given explicitly; see applyFlagOverrides.
func newFlagSet(name string, handling flag.ErrorHandling) *flag.FlagSet {
	fs := flag.NewFlagSet(name, handling)
	fs.String("config", "", "Run config JSON (defaults apply when empty)")
	fs.String("addr", "localhost", "Simulator bridge host")
	fs.Int("port", 2000, "Simulator bridge port")
	fs.String("world", "", "World to load before spawning (keeps the current one when empty)")
	fs.Float64("target-speed", 5.0, "Target cruise speed in km/h")
	fs.String("policy", "first", "Successor policy at forks: first|random")
	fs.Uint64("seed", 0, "Seed for the random successor policy (0 = time-based)")
	fs.Uint64("max-ticks", 0, "Stop after this many ticks (0 = until interrupted)")
	fs.String("can-iface", "", "SocketCAN interface to mirror commands on (disabled when empty)")
	fs.String("can-map", "config/can/can_map.csv", "Path to can_map.csv")
	fs.String("log", "info", "trace|debug|info|warn|error|critical")
	fs.String("log-file", "autocontrol.log", "Log file path")
	return fs
}

// applyFlagOverrides copies the explicitly set flags of fs over cfg.
func applyFlagOverrides(cfg RunConfig, fs *flag.FlagSet) (RunConfig, error) {
	var err error
	fs.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		v := f.Value.(flag.Getter).Get()
		switch f.Name {
		case "addr":
			cfg.Bridge.Addr = v.(string)
		case "port":
			cfg.Bridge.Port = v.(int)
		case "world":
			cfg.Bridge.World = v.(string)
		case "target-speed":
			cfg.Controller.TargetSpeedKMH = v.(float64)
		case "policy":
			p, perr := route.ParsePolicy(v.(string))
			if perr != nil {
				err = fmt.Errorf("-policy: %w", perr)
				return
			}
			cfg.Route.Policy = p
		case "seed":
			cfg.Route.Seed = v.(uint64)
		case "max-ticks":
			cfg.Timing.MaxTicks = v.(uint64)
		case "can-iface":
			cfg.CAN.Interface = v.(string)
		case "can-map":
			cfg.CAN.MapPath = v.(string)
		}
	})
	if err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

func main() {
	fs := newFlagSet(os.Args[0], flag.ExitOnError)
	_ = fs.Parse(os.Args[1:])

	cfgPath := fs.Lookup("config").Value.String()
	logFile := fs.Lookup("log-file").Value.String()

	log, err := utils.NewFileLogger(logFile, utils.ParseLevel(fs.Lookup("log").Value.String()), true)
	if err != nil {
		_, _ = os.Stderr.WriteString("ERROR: cannot open " + logFile + ": " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Close()

	runID := uuid.NewString()
	log.SetPrefix("run=" + runID[:8])

	cfg, err := LoadRunConfig(cfgPath)
	if err != nil {
		fatal(log, "Config %q: %v", cfgPath, err)
	}
	cfg, err = applyFlagOverrides(cfg, fs)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fatal(log, "Invalid options: %v", err)
	}

	log.Info("Run id %s", runID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := NewRunner(ctx, cfg, log, runID)
	if err != nil {
		fatal(log, "Startup failed: %v", err)
	}
	defer runner.Close()

	if err := runner.Run(ctx); err != nil {
		runner.Close()
		fatal(log, "Run failed: %v", err)
	}
}

func fatal(log *utils.Logger, msg string, args ...any) {
	log.Critical(msg, args...)
	fmt.Fprintf(os.Stderr, "autocontrol: "+msg+"\n", args...)
	_ = log.Close()
	os.Exit(1)
}
