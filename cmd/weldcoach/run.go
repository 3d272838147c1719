package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/weldcoach/internal/api"
	"github.com/banshee-data/weldcoach/internal/config"
	"github.com/banshee-data/weldcoach/internal/db"
	"github.com/banshee-data/weldcoach/internal/marker"
	"github.com/banshee-data/weldcoach/internal/motion"
	"github.com/banshee-data/weldcoach/internal/mqttbridge"
	"github.com/banshee-data/weldcoach/internal/replay"
	"github.com/banshee-data/weldcoach/internal/report"
	"github.com/banshee-data/weldcoach/internal/session"
	"github.com/banshee-data/weldcoach/internal/technique"
	"github.com/banshee-data/weldcoach/internal/timeutil"
	"github.com/banshee-data/weldcoach/internal/trainer"
)

type runOptions struct {
	technique  technique.Technique
	configPath string
	dbPath     string
	reportDir  string
	record     string

	replayPath string
	demo       bool
	seed       int64
	realtime   bool

	markers    string
	motionPort string
	motionBaud int
	listen     string

	mqttBroker  string
	mqttPrefix  string
	motionTopic string
}

func parseRunFlags(args []string) (runOptions, error) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var (
		o    runOptions
		tech string
	)
	fs.StringVar(&tech, "technique", "MIG", "Welding technique: MIG, TIG or ELECTRODE")
	fs.StringVar(&o.configPath, "config", "", "Tuning config JSON (defaults when empty)")
	fs.StringVar(&o.dbPath, "db", defaultDBPath, "Session database path (empty disables storage)")
	fs.StringVar(&o.reportDir, "report-dir", "", "Write PNG and HTML reports to this directory")
	fs.StringVar(&o.record, "record", "", "Record every tick's inputs to this JSONL file")
	fs.StringVar(&o.replayPath, "replay", "", "Replay a JSONL recording instead of live input")
	fs.BoolVar(&o.demo, "demo", false, "Score synthetic demo input")
	fs.Int64Var(&o.seed, "seed", 1, "Random seed for -demo")
	fs.BoolVar(&o.realtime, "realtime", false, "Play -demo or -replay input at the live tick rate")
	fs.StringVar(&o.markers, "markers", "", "JSONL marker/motion ticks from the detector (file, or - for stdin)")
	fs.StringVar(&o.motionPort, "motion-port", "", "Serial port of the IMU bridge")
	fs.IntVar(&o.motionBaud, "motion-baud", 115200, "IMU bridge baud rate")
	fs.StringVar(&o.listen, "listen", "", "Stream live updates over a websocket at this address (live input only)")
	fs.StringVar(&o.mqttBroker, "mqtt-broker", "", "Publish updates and results to this MQTT broker (e.g. tcp://localhost:1883)")
	fs.StringVar(&o.mqttPrefix, "mqtt-prefix", mqttbridge.DefaultPrefix, "MQTT topic prefix")
	fs.StringVar(&o.motionTopic, "motion-topic", "", "Subscribe IMU samples from this MQTT topic")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	t, err := technique.Parse(tech)
	if err != nil {
		return o, err
	}
	o.technique = t

	sources := 0
	for _, set := range []bool{o.replayPath != "", o.demo, o.markers != "" || o.motionPort != "" || o.motionTopic != ""} {
		if set {
			sources++
		}
	}
	switch {
	case sources == 0:
		return o, errors.New("no input: use -demo, -replay, or -markers/-motion-port/-motion-topic")
	case sources > 1:
		return o, errors.New("-demo, -replay and live input are mutually exclusive")
	case o.realtime && !o.demo && o.replayPath == "":
		return o, errors.New("-realtime requires -demo or -replay")
	case o.listen != "" && (o.demo || o.replayPath != "") && !o.realtime:
		return o, errors.New("-listen requires live input or -realtime")
	case o.motionTopic != "" && o.mqttBroker == "":
		return o, errors.New("-motion-topic requires -mqtt-broker")
	case o.motionTopic != "" && o.motionPort != "":
		return o, errors.New("-motion-topic and -motion-port are mutually exclusive")
	}
	return o, nil
}

func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.EmptyTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

func runCommand(args []string) error {
	o, err := parseRunFlags(args)
	if err != nil {
		return err
	}
	tuning, err := loadTuning(o.configPath)
	if err != nil {
		return err
	}
	cfg, err := trainer.ConfigFromTuning(tuning, o.technique)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var bus mqttbridge.Client
	if o.mqttBroker != "" {
		client, err := mqttbridge.Connect(o.mqttBroker, fmt.Sprintf("weldcoach-%d", os.Getpid()))
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		bus = client
	}

	var res session.Result
	var runner *trainer.Runner
	switch {
	case (o.demo || o.replayPath != "") && !o.realtime:
		res, runner, err = runOffline(o, cfg, bus)
	default:
		res, runner, err = runLive(ctx, o, cfg, bus)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	samples := runner.Session().Samples()
	printResult(os.Stdout, res)

	if o.dbPath != "" {
		store, err := db.Open(o.dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()
		if err := store.SaveSession(res, samples); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		log.Printf("saved session %s to %s", res.ID, o.dbPath)
	}

	if o.reportDir != "" {
		paths, err := report.Write(o.reportDir, res, samples, cfg.Params)
		if errors.Is(err, report.ErrNoSamples) {
			log.Printf("no samples recorded, skipping report")
		} else if err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		for _, p := range paths {
			log.Printf("wrote %s", p)
		}
	}
	return nil
}

// attachRecorder makes the runner write every tick's inputs to path. The
// returned func closes the file.
func attachRecorder(r *trainer.Runner, path string) (func() error, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := replay.NewWriter(f)
	r.Tap = func(ts time.Time, obs *marker.Observation, s *motion.Sample) {
		if err := w.Write(replay.Tick{Timestamp: ts, Marker: obs, Motion: s}); err != nil {
			log.Printf("recording: %v", err)
		}
	}
	return func() error {
		log.Printf("recorded %d ticks to %s", w.Count(), path)
		return f.Close()
	}, nil
}

// onUpdate adds f to the runner's update hooks.
func onUpdate(r *trainer.Runner, f func(trainer.Update)) {
	prev := r.OnUpdate
	r.OnUpdate = func(u trainer.Update) {
		if prev != nil {
			prev(u)
		}
		f(u)
	}
}

// prepareRunner builds the runner with the optional recorder and MQTT
// publisher attached. The returned func releases the recorder.
func prepareRunner(o runOptions, cfg trainer.Config, bus mqttbridge.Client) (*trainer.Runner, func(), error) {
	runner, err := trainer.NewRunner(cfg)
	if err != nil {
		return nil, nil, err
	}
	release := func() {}
	if o.record != "" {
		closeRec, err := attachRecorder(runner, o.record)
		if err != nil {
			return nil, nil, err
		}
		release = func() {
			if err := closeRec(); err != nil {
				log.Printf("recording: %v", err)
			}
		}
	}
	if bus != nil {
		pub := mqttbridge.NewPublisher(bus, o.mqttPrefix, cfg.Params.Technique)
		onUpdate(runner, pub.Publish)
	}
	return runner, release, nil
}

// runOffline scores demo or recorded input as fast as it can be read,
// following the input's own timestamps.
func runOffline(o runOptions, cfg trainer.Config, bus mqttbridge.Client) (session.Result, *trainer.Runner, error) {
	clock := timeutil.NewMockClock(time.Now())
	cfg.Clock = clock
	runner, release, err := prepareRunner(o, cfg, bus)
	if err != nil {
		return session.Result{}, nil, err
	}
	defer release()

	src, closeSrc, err := openTicks(o, cfg, clock.Now())
	if err != nil {
		return session.Result{}, runner, err
	}
	defer closeSrc()

	res, err := replay.Drive(runner, clock, src)
	return res, runner, err
}

// openTicks opens the demo generator or the recording named by o.
func openTicks(o runOptions, cfg trainer.Config, start time.Time) (replay.TickSource, func(), error) {
	if o.demo {
		log.Printf("demo: %s for %s", cfg.Params.Technique, cfg.Params.Duration)
		return replay.NewSynthetic(cfg.Camera, cfg.Params, start, cfg.TickInterval, o.seed), func() {}, nil
	}
	f, err := os.Open(o.replayPath)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("replaying %s", o.replayPath)
	return replay.NewReader(f), func() { f.Close() }, nil
}

// runLive ticks in real time over the latest detector and IMU inputs, or
// over demo or recorded input with -realtime.
func runLive(ctx context.Context, o runOptions, cfg trainer.Config, bus mqttbridge.Client) (session.Result, *trainer.Runner, error) {
	runner, release, err := prepareRunner(o, cfg, bus)
	if err != nil {
		return session.Result{}, nil, err
	}
	defer release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	slots := &trainer.Slots{Hold: cfg.MarkerHold}
	var src trainer.Source = slots
	var player *replay.Player
	var wg sync.WaitGroup

	if o.realtime {
		ticks, closeSrc, err := openTicks(o, cfg, time.Now())
		if err != nil {
			return session.Result{}, runner, err
		}
		defer closeSrc()
		player = replay.NewPlayer(ticks)
		src = player
	}

	if o.motionPort != "" {
		port, err := motion.OpenSerial(o.motionPort, motion.PortOptions{BaudRate: o.motionBaud})
		if err != nil {
			return session.Result{}, runner, err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			readMotion(ctx, port, slots)
		}()
	}

	if o.motionTopic != "" {
		sub, err := mqttbridge.SubscribeMotion(bus, o.motionTopic, slots)
		if err != nil {
			return session.Result{}, runner, err
		}
		defer func() {
			if err := sub.Close(); err != nil {
				log.Printf("mqtt: %v", err)
			}
			log.Printf("motion topic %s: %d malformed messages skipped", o.motionTopic, sub.Skipped())
		}()
	}

	if o.markers != "" {
		in, err := openInput(o.markers)
		if err != nil {
			return session.Result{}, runner, err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			readMarkers(ctx, in, slots)
		}()
	}

	var feed *api.LiveFeed
	if o.listen != "" {
		ln, err := net.Listen("tcp", o.listen)
		if err != nil {
			return session.Result{}, runner, fmt.Errorf("listen on %s: %w", o.listen, err)
		}
		feed = api.NewLiveFeed()
		mux := http.NewServeMux()
		mux.Handle("GET /api/live", feed)
		log.Printf("streaming live updates on ws://%s/api/live", ln.Addr())
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := serve(ctx, ln, mux); err != nil {
				log.Printf("live server: %v", err)
			}
		}()
	}

	log.Printf("session started: %s for %s", cfg.Params.Technique, cfg.Params.Duration)
	if feed != nil {
		onUpdate(runner, feed.Publish)
	}
	onUpdate(runner, func(u trainer.Update) {
		if u.Completed {
			log.Printf("session completed")
		}
	})
	res, runErr := runner.Run(ctx, src)
	if feed != nil {
		feed.Close()
	}
	cancel()
	wg.Wait()
	if runErr == nil && player != nil {
		runErr = player.Err()
	}
	return res, runner, runErr
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return os.Stdin, nil
	}
	return os.Open(path)
}

// readMotion feeds IMU samples into slots until the port fails or ctx is
// done. Closing the port unblocks the pending read.
func readMotion(ctx context.Context, port io.ReadCloser, slots *trainer.Slots) {
	go func() {
		<-ctx.Done()
		port.Close()
	}()
	r := motion.NewReader(port)
	for {
		s, err := r.Next()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				log.Printf("motion port: %v", err)
			}
			log.Printf("motion reader terminated (%d malformed lines skipped)", r.Skipped())
			return
		}
		slots.SetMotion(s)
	}
}

// readMarkers feeds detector ticks into slots until the input ends or ctx
// is done.
func readMarkers(ctx context.Context, in io.ReadCloser, slots *trainer.Slots) {
	go func() {
		<-ctx.Done()
		in.Close()
	}()
	r := replay.NewReader(in)
	for ctx.Err() == nil {
		t, err := r.Next()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				log.Printf("marker input: %v", err)
			}
			log.Print("marker reader terminated")
			return
		}
		if t.Marker != nil {
			slots.SetMarker(*t.Marker)
		}
		if t.Motion != nil {
			slots.SetMotion(*t.Motion)
		}
	}
}

func printResult(w io.Writer, r session.Result) {
	fmt.Fprintf(w, "Session %s (%s)\n", r.ID, r.Technique)
	fmt.Fprintf(w, "  Score:      %d (%s)\n", r.Score, r.Grade)
	fmt.Fprintf(w, "  Duration:   %s over %d samples\n", r.Duration.Round(100*time.Millisecond), r.Samples)
	fmt.Fprintf(w, "  Tolerance:  %.0f%% of samples\n", r.TimeInTolerance*100)
	if r.Samples > 0 {
		a := r.Averages
		fmt.Fprintf(w, "  Averages:   angle %.1f°, distance %.1f mm", a.Angle, a.Distance)
		if a.SpeedKnown {
			fmt.Fprintf(w, ", speed %.1f mm/s", a.Speed)
		}
		fmt.Fprintf(w, ", stability %.0f\n", a.Stability)
	}
	fmt.Fprintln(w, "  Feedback:")
	for _, f := range r.Feedback {
		fmt.Fprintf(w, "    - %s\n", strings.TrimSpace(f))
	}
}
