package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/JesseDarr/odrive-can-tools/axis"
	"github.com/JesseDarr/odrive-can-tools/canbus"
	"github.com/JesseDarr/odrive-can-tools/config"
	"github.com/JesseDarr/odrive-can-tools/configure"
	"github.com/JesseDarr/odrive-can-tools/drive"
	"github.com/JesseDarr/odrive-can-tools/internal/logging"
	"github.com/JesseDarr/odrive-can-tools/monitor"
	"github.com/JesseDarr/odrive-can-tools/protocol"
	"github.com/JesseDarr/odrive-can-tools/registry"
	"github.com/JesseDarr/odrive-can-tools/telemetry"
)

const usage = `Usage: odrivecan [flags] <command> [args]

Commands:
  discover                 List node ids seen on the bus
  version [node...]        Report firmware and hardware versions
  configure [node...]      Apply device-class profiles and persist
  calibrate [node...]      Run full calibration, one node at a time
  errors [node...]         Report fault words (-clear to zero active errors)
  set-id <old> <new>       Move a node to a new bus address
  state <node> <state>     Request an axis state (idle, closed_loop, ...)
  position <node> <turns>  Command a position in turns
  torque <node> <nm>       Command a torque in newton-metres
  wave                     Oscillate all discovered nodes (-amplitude, -period)
  monitor [node...]        Sample live readings until interrupted

Flags:
`

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to configuration file")
	iface := flag.String("interface", "", "Override the CAN interface address")
	window := flag.Duration("window", 0, "Override the discovery window")
	clearErrors := flag.Bool("clear", false, "Zero active errors (errors command)")
	amplitude := flag.Float64("amplitude", 1.0, "Oscillation amplitude in turns (wave command)")
	period := flag.Duration("period", time.Second, "Oscillation period (wave command)")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Fatal().Err(err).Msg("failed to load configuration")
		}
		cfg = config.Default()
	}
	if *iface != "" {
		cfg.Bus.Address = *iface
	}
	if *window > 0 {
		cfg.Timing.DiscoveryWindow.Duration = *window
	}

	logger, cleanup, err := logging.Setup(cfg.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup logger")
	}
	defer cleanup()
	log.Logger = logger

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	collector := newCollector(cfg.Telemetry, logger)

	if err := run(ctx, flag.Args(), cfg, logger, collector, options{
		clearErrors: *clearErrors,
		amplitude:   *amplitude,
		period:      *period,
	}); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.Fatal().Err(err).Msg("command failed")
	}
}

type options struct {
	clearErrors bool
	amplitude   float64
	period      time.Duration
}

func run(ctx context.Context, args []string, cfg *config.Config, logger zerolog.Logger, collector telemetry.Collector, opts options) error {
	bus, err := canbus.Dial(ctx, cfg.Bus.Network, cfg.Bus.Address,
		canbus.WithLogger(logger),
		canbus.WithSendTimeout(cfg.Bus.SendTimeout.Duration))
	if err != nil {
		return fmt.Errorf("open bus %s/%s: %w", cfg.Bus.Network, cfg.Bus.Address, err)
	}
	defer bus.Close()
	bus = canbus.Instrument(bus, logger, collector)

	command, args := args[0], args[1:]
	if command == "discover" {
		nodes, err := drive.Discover(bus, cfg.Timing.DiscoveryWindow.Duration, logger)
		if err != nil {
			return err
		}
		for _, node := range nodes {
			fmt.Println(node)
		}
		return nil
	}

	reg, err := registry.Load(cfg.Endpoints)
	if err != nil {
		return err
	}
	client := drive.NewClient(bus, reg,
		drive.WithResponseTimeout(cfg.Timing.ResponseTimeout.Duration),
		drive.WithTolerance(cfg.Tolerance),
		drive.WithLogger(logger))

	switch command {
	case "version":
		return runVersion(client, cfg, logger, args)
	case "configure":
		return runConfigure(client, cfg, logger, collector, args)
	case "calibrate":
		return runCalibrate(ctx, client, cfg, logger, collector, args)
	case "errors":
		return runErrors(client, cfg, logger, args, opts.clearErrors)
	case "set-id":
		return runSetID(client, logger, collector, args)
	case "state":
		return runState(client, args)
	case "position":
		return runMove(client, args, axis.SetPosition)
	case "torque":
		return runMove(client, args, axis.SetTorque)
	case "wave":
		return runWave(ctx, client, cfg, logger, opts)
	case "monitor":
		return runMonitor(ctx, client, cfg, logger, collector, args)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func runVersion(client *drive.Client, cfg *config.Config, logger zerolog.Logger, args []string) error {
	nodes, err := resolveNodes(client, cfg, logger, args)
	if err != nil {
		return err
	}
	for _, node := range nodes {
		v, err := client.QueryVersion(node)
		if err != nil {
			logger.Error().Err(err).Uint8("node", uint8(node)).Msg("version query failed")
			continue
		}
		fmt.Printf("node %d: firmware %s hardware %s\n", node, v.Firmware(), v.Hardware())
	}
	return nil
}

func runConfigure(client *drive.Client, cfg *config.Config, logger zerolog.Logger, collector telemetry.Collector, args []string) error {
	if cfg.Profiles == "" {
		return errors.New("no profiles file configured")
	}
	profiles, err := registry.LoadProfiles(cfg.Profiles)
	if err != nil {
		return err
	}
	nodes, err := resolveNodes(client, cfg, logger, args)
	if err != nil {
		return err
	}

	configurator := configure.New(client, logger, collector)
	for _, node := range nodes {
		if cfg.VersionCheck.Enabled {
			if err := client.CheckVersion(node, cfg.VersionCheck.Firmware, cfg.VersionCheck.Hardware); err != nil {
				return err
			}
		}
		class := cfg.ClassFor(node)
		if class == "" {
			logger.Warn().Uint8("node", uint8(node)).Msg("no device class assigned, skipping")
			continue
		}
		profile, err := profiles.Get(class)
		if err != nil {
			return err
		}
		logger.Info().Uint8("node", uint8(node)).Str("class", class).Msg("configuring node")
		if err := configurator.Apply(node, profile.Settings); err != nil {
			return err
		}
	}
	return nil
}

func runCalibrate(ctx context.Context, client *drive.Client, cfg *config.Config, logger zerolog.Logger, collector telemetry.Collector, args []string) error {
	nodes, err := resolveNodes(client, cfg, logger, args)
	if err != nil {
		return err
	}
	for _, node := range nodes {
		// Drop to idle first so a previous mode cannot fight the sequence.
		if err := axis.RequestState(client.Bus(), node, axis.StateIdle); err != nil {
			return err
		}
		if err := axis.Calibrate(ctx, client, node, axis.CalibrateOptions{
			Interval:  cfg.Timing.PollInterval.Duration,
			Timeout:   cfg.Timing.CalibrationTimeout.Duration,
			Collector: collector,
			Logger:    logger,
		}); err != nil {
			return err
		}
	}
	return nil
}

func runErrors(client *drive.Client, cfg *config.Config, logger zerolog.Logger, args []string, clear bool) error {
	nodes, err := resolveNodes(client, cfg, logger, args)
	if err != nil {
		return err
	}
	for _, node := range nodes {
		for _, report := range client.ErrorStatus(node, clear) {
			if !report.Present {
				fmt.Printf("node %d: %s: no response\n", node, report.Path)
				continue
			}
			suffix := ""
			if report.Cleared {
				suffix = " (cleared)"
			}
			fmt.Printf("node %d: %s = %v%s\n", node, report.Path, report.Value, suffix)
		}
	}
	return nil
}

func runSetID(client *drive.Client, logger zerolog.Logger, collector telemetry.Collector, args []string) error {
	if len(args) != 2 {
		return errors.New("set-id needs <old> and <new> node ids")
	}
	oldID, err := parseNode(args[0])
	if err != nil {
		return err
	}
	newID, err := parseNode(args[1])
	if err != nil {
		return err
	}
	return configure.New(client, logger, collector).Rename(oldID, newID)
}

func runState(client *drive.Client, args []string) error {
	if len(args) != 2 {
		return errors.New("state needs <node> and <state>")
	}
	node, err := parseNode(args[0])
	if err != nil {
		return err
	}
	state, err := parseState(args[1])
	if err != nil {
		return err
	}
	return axis.RequestState(client.Bus(), node, state)
}

func runMove(client *drive.Client, args []string, move func(canbus.Bus, protocol.NodeID, float64) error) error {
	if len(args) != 2 {
		return errors.New("need <node> and a value")
	}
	node, err := parseNode(args[0])
	if err != nil {
		return err
	}
	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("parse value %q: %w", args[1], err)
	}
	return move(client.Bus(), node, value)
}

func runWave(ctx context.Context, client *drive.Client, cfg *config.Config, logger zerolog.Logger, opts options) error {
	nodes, err := resolveNodes(client, cfg, logger, nil)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return errors.New("no nodes discovered")
	}
	actuators := make([]axis.Actuator, 0, len(nodes))
	for _, node := range nodes {
		actuators = append(actuators, axis.SingleAxis{Node: node})
	}
	return axis.Wave(ctx, client.Bus(), actuators, axis.WaveOptions{
		Amplitude: opts.amplitude,
		Period:    opts.period,
		Logger:    logger,
	})
}

func runMonitor(ctx context.Context, client *drive.Client, cfg *config.Config, logger zerolog.Logger, collector telemetry.Collector, args []string) error {
	nodes, err := resolveNodes(client, cfg, logger, args)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return errors.New("no nodes to monitor")
	}
	sampler := monitor.NewSampler(client, nodes, cfg.Timing.PollInterval.Duration, collector, logger)
	if err := sampler.Run(ctx); errors.Is(err, context.Canceled) {
		return nil
	} else if err != nil {
		return err
	}
	return nil
}

// resolveNodes parses explicit node arguments, or falls back to a passive
// discovery round when none are given.
func resolveNodes(client *drive.Client, cfg *config.Config, logger zerolog.Logger, args []string) ([]protocol.NodeID, error) {
	if len(args) == 0 {
		return drive.Discover(client.Bus(), cfg.Timing.DiscoveryWindow.Duration, logger)
	}
	nodes := make([]protocol.NodeID, 0, len(args))
	for _, arg := range args {
		node, err := parseNode(arg)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func parseNode(arg string) (protocol.NodeID, error) {
	raw, err := strconv.ParseUint(arg, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("parse node id %q: %w", arg, err)
	}
	node := protocol.NodeID(raw)
	if err := node.Validate(); err != nil {
		return 0, err
	}
	return node, nil
}

func parseState(arg string) (axis.State, error) {
	switch arg {
	case "idle":
		return axis.StateIdle, nil
	case "closed_loop":
		return axis.StateClosedLoopControl, nil
	case "full_calibration":
		return axis.StateFullCalibrationSequence, nil
	case "motor_calibration":
		return axis.StateMotorCalibration, nil
	case "encoder_index_search":
		return axis.StateEncoderIndexSearch, nil
	case "encoder_offset_calibration":
		return axis.StateEncoderOffsetCalibration, nil
	}
	if raw, err := strconv.ParseUint(arg, 10, 32); err == nil {
		return axis.State(raw), nil
	}
	return 0, fmt.Errorf("unknown axis state %q", arg)
}

func newCollector(cfg config.TelemetryConfig, logger zerolog.Logger) telemetry.Collector {
	if !cfg.Enabled {
		return telemetry.Noop()
	}
	collector, err := telemetry.NewPrometheusCollector(nil)
	if err != nil {
		logger.Error().Err(err).Msg("telemetry disabled")
		return telemetry.Noop()
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.Listen, mux); err != nil {
			logger.Error().Err(err).Str("listen", cfg.Listen).Msg("metrics listener stopped")
		}
	}()
	return collector
}
