package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/weldcoach/internal/db"
	"github.com/banshee-data/weldcoach/internal/replay"
	"github.com/banshee-data/weldcoach/internal/session"
	"github.com/banshee-data/weldcoach/internal/technique"
	"github.com/banshee-data/weldcoach/internal/trainer"
)

func TestParseRunFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
		check   func(t *testing.T, o runOptions)
	}{
		{
			name: "demo defaults",
			args: []string{"-demo"},
			check: func(t *testing.T, o runOptions) {
				assert.Equal(t, technique.MIG, o.technique)
				assert.Equal(t, defaultDBPath, o.dbPath)
				assert.EqualValues(t, 1, o.seed)
				assert.Equal(t, 115200, o.motionBaud)
			},
		},
		{
			name: "technique alias",
			args: []string{"-demo", "-technique", "stick"},
			check: func(t *testing.T, o runOptions) {
				assert.Equal(t, technique.Electrode, o.technique)
			},
		},
		{
			name: "live input",
			args: []string{"-markers", "-", "-motion-port", "/dev/ttyUSB0", "-motion-baud", "57600"},
			check: func(t *testing.T, o runOptions) {
				assert.Equal(t, "-", o.markers)
				assert.Equal(t, "/dev/ttyUSB0", o.motionPort)
				assert.Equal(t, 57600, o.motionBaud)
			},
		},
		{name: "no input", args: nil, wantErr: "no input"},
		{name: "conflicting inputs", args: []string{"-demo", "-replay", "x.jsonl"}, wantErr: "mutually exclusive"},
		{
			name: "live listen",
			args: []string{"-markers", "ticks.jsonl", "-listen", ":9090"},
			check: func(t *testing.T, o runOptions) {
				assert.Equal(t, ":9090", o.listen)
			},
		},
		{name: "listen needs live input", args: []string{"-demo", "-listen", ":9090"}, wantErr: "requires live input"},
		{
			name: "realtime replay listen",
			args: []string{"-replay", "x.jsonl", "-realtime", "-listen", ":9090"},
			check: func(t *testing.T, o runOptions) {
				assert.True(t, o.realtime)
				assert.Equal(t, ":9090", o.listen)
			},
		},
		{name: "realtime needs recorded input", args: []string{"-markers", "-", "-realtime"}, wantErr: "-realtime requires"},
		{
			name: "mqtt motion",
			args: []string{"-markers", "-", "-mqtt-broker", "tcp://localhost:1883", "-motion-topic", "phone/imu"},
			check: func(t *testing.T, o runOptions) {
				assert.Equal(t, "phone/imu", o.motionTopic)
				assert.Equal(t, "weldcoach", o.mqttPrefix)
			},
		},
		{name: "motion topic needs broker", args: []string{"-motion-topic", "imu"}, wantErr: "requires -mqtt-broker"},
		{
			name:    "motion topic and port",
			args:    []string{"-mqtt-broker", "tcp://b:1883", "-motion-topic", "imu", "-motion-port", "/dev/ttyUSB0"},
			wantErr: "mutually exclusive",
		},
		{name: "unknown technique", args: []string{"-demo", "-technique", "laser"}, wantErr: "technique"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := parseRunFlags(tt.args)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, o)
		})
	}
}

func TestRunDemoStoresAndReports(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sessions.db")
	reportDir := filepath.Join(dir, "reports")
	recording := filepath.Join(dir, "demo.jsonl")

	require.NoError(t, runCommand([]string{
		"-demo", "-technique", "TIG", "-db", dbPath, "-report-dir", reportDir, "-record", recording,
	}))

	store, err := db.Open(dbPath)
	require.NoError(t, err)
	recent, err := store.RecentSessions(0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	res := recent[0]
	assert.Equal(t, technique.TIG, res.Technique)
	assert.Equal(t, technique.MustLookup(technique.TIG).Duration, res.Duration)
	require.NoError(t, store.Close())

	_, err = os.Stat(filepath.Join(reportDir, res.ID+".html"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(reportDir, res.ID+"_quality.png"))
	assert.NoError(t, err)

	// Replaying the recording scores the same session again.
	require.NoError(t, runCommand([]string{"-replay", recording, "-technique", "TIG", "-db", dbPath}))
	store, err = db.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()
	recent, err = store.RecentSessions(0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, recent[0].Score, recent[1].Score)
	assert.Equal(t, recent[0].Samples, recent[1].Samples)

	var out bytes.Buffer
	require.NoError(t, historyCommand([]string{"-db", dbPath}, &out))
	assert.Contains(t, out.String(), "TIG")
	assert.Contains(t, out.String(), res.ID)
	assert.Contains(t, out.String(), "BEST SESSION")
}

func TestHistoryEmpty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, historyCommand([]string{"-db", filepath.Join(t.TempDir(), "empty.db")}, &out))
	assert.Contains(t, out.String(), "no sessions recorded")
}

func TestMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "m.db")

	var out bytes.Buffer
	require.NoError(t, migrateCommand([]string{"-db", dbPath, "version"}, &out))
	assert.Equal(t, "schema version 0 of 2\n", out.String())

	out.Reset()
	require.NoError(t, migrateCommand([]string{"-db", dbPath, "up"}, &out))
	assert.Equal(t, "schema version 2 of 2\n", out.String())

	out.Reset()
	require.NoError(t, migrateCommand([]string{"-db", dbPath, "down"}, &out))
	assert.Equal(t, "schema version 1 of 2\n", out.String())

	assert.Error(t, migrateCommand([]string{"-db", dbPath, "force"}, &out))
	assert.Error(t, migrateCommand([]string{"-db", dbPath, "sideways"}, &out))
}

func TestPrintResult(t *testing.T) {
	var out bytes.Buffer
	printResult(&out, session.Result{
		ID:        "abc",
		Technique: technique.MIG,
		Grade:     session.GradeF,
		Feedback:  []string{"No metrics were recorded."},
	})
	text := out.String()
	assert.True(t, strings.HasPrefix(text, "Session abc (MIG)\n"))
	assert.Contains(t, text, "Score:      0 (F)")
	assert.NotContains(t, text, "Averages")
	assert.Contains(t, text, "- No metrics were recorded.")
}

type recordingBus struct {
	topics []string
}

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Error() error                   { return nil }
func (doneToken) Done() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

func (b *recordingBus) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	b.topics = append(b.topics, topic)
	return doneToken{}
}

func (b *recordingBus) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token { return doneToken{} }
func (b *recordingBus) Unsubscribe(...string) mqtt.Token                       { return doneToken{} }

func TestRunOfflinePublishesToBroker(t *testing.T) {
	o, err := parseRunFlags([]string{"-demo", "-technique", "MIG", "-mqtt-broker", "tcp://unused:1883"})
	require.NoError(t, err)
	cfg, err := trainer.ConfigFromTuning(nil, o.technique)
	require.NoError(t, err)

	bus := &recordingBus{}
	res, runner, err := runOffline(o, cfg, bus)
	require.NoError(t, err)
	require.NotNil(t, runner)
	assert.Equal(t, cfg.Params.Duration, res.Duration)

	require.NotEmpty(t, bus.topics)
	assert.Equal(t, "weldcoach/mig/live", bus.topics[0])
	assert.Equal(t, "weldcoach/mig/result", bus.topics[len(bus.topics)-1])
}

func TestRunRealtimeReplayStopsAtEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.jsonl")
	f, err := os.Create(path)
	require.NoError(t, err)
	cfg, err := trainer.ConfigFromTuning(nil, technique.MIG)
	require.NoError(t, err)
	w := replay.NewWriter(f)
	start := time.Now()
	for i := 0; i < 5; i++ {
		ts := start.Add(time.Duration(i) * cfg.TickInterval)
		obs := replay.ObservationAt(cfg.Camera, 75, 12.5, 640+float64(i)*10, ts)
		require.NoError(t, w.Write(replay.Tick{Timestamp: ts, Marker: &obs}))
	}
	require.NoError(t, f.Close())

	o, err := parseRunFlags([]string{"-replay", path, "-realtime", "-db", ""})
	require.NoError(t, err)
	cfg.TickInterval = 2 * time.Millisecond

	res, runner, err := runLive(context.Background(), o, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Samples)
	assert.Less(t, res.Duration, cfg.Params.Duration)
	assert.Equal(t, session.Completed, runner.Session().State())
}
