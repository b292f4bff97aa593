package console

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/moyoez/partyline-console/command"
	"github.com/moyoez/partyline-console/device"
	"github.com/moyoez/partyline-console/poller"
	"github.com/moyoez/partyline-console/telemetry"
	"github.com/moyoez/partyline-console/types"
)

// fakeIntercom serves the collaborator endpoints from in-memory state.
type fakeIntercom struct {
	mu        sync.Mutex
	cfg       json.RawMessage
	txRunning bool
	rxRunning bool
	statuses  int
	metrics   string
}

func newFakeIntercom() *fakeIntercom {
	cfg, _ := json.Marshal(types.DefaultDeviceConfig())
	return &fakeIntercom{cfg: cfg}
}

func (f *fakeIntercom) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case device.PathStatus:
		f.statuses++
		_, _ = w.Write([]byte(`{"config":` + string(f.cfg) + `,"tx_running":` + boolJSON(f.txRunning) + `,"rx_running":` + boolJSON(f.rxRunning) + `}`))
	case device.PathStartTx:
		f.txRunning = true
		_, _ = io.WriteString(w, `{"ok":true}`)
	case device.PathConfig:
		body, _ := io.ReadAll(r.Body)
		f.cfg = body
		_, _ = w.Write([]byte(`{"ok":true,"config":` + string(body) + `}`))
	case device.PathMetrics:
		if f.metrics != "" {
			_, _ = io.WriteString(w, f.metrics)
			return
		}
		_, _ = io.WriteString(w, `{"receiving":true,"pps_recent":50,"bps_recent":9800,"mix_level_db":-18.3,"group":"239.69.69.69","port":5004}`)
	case device.PathPeers:
		_, _ = io.WriteString(w, `{"peers":[{"ssrc":23456789,"name":"Unit B","packets":10,"level_db":-40,"last_seen_sec":0.1}]}`)
	case device.PathMicLevel:
		_, _ = io.WriteString(w, `{"db":null}`)
	case device.PathAlsaDevices:
		_, _ = io.WriteString(w, `{"devices":[{"id":"hw:1,0","desc":"USB"}],"recommended":"hw:1,0"}`)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeIntercom) statusCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses
}

func (f *fakeIntercom) setMetrics(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics = body
}

func (f *fakeIntercom) setConfig(cfg types.DeviceConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg, _ = json.Marshal(cfg)
}

func boolJSON(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func newTestSession(t *testing.T, fake http.Handler, hidden bool) *Session {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	s := NewSession(Options{
		Base:             srv.URL,
		Hidden:           hidden,
		Poll:             types.PollConfig{MetricsMs: 20, PeersMs: 20, MicLevelMs: 20},
		SchedulerOptions: []poller.Option{poller.WithResolution(5 * time.Millisecond)},
		CommandOptions:   []command.Option{command.WithLimiter(rate.NewLimiter(rate.Inf, 1))},
	})
	t.Cleanup(s.Close)
	return s
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestInitialStatusShowsBothStopped(t *testing.T) {
	s := newTestSession(t, newFakeIntercom(), false)
	s.Start()
	eventually(t, "initial status", func() bool { return s.Store.Snapshot().Loaded })

	v := s.View()
	if v.TxBadge != BadgeStopped || v.RxBadge != BadgeStopped {
		t.Errorf("badges = %s/%s", v.TxBadge, v.RxBadge)
	}
}

func TestStartTxFlipsBadgeAfterRefresh(t *testing.T) {
	s := newTestSession(t, newFakeIntercom(), false)
	s.Start()
	eventually(t, "initial status", func() bool { return s.Store.Snapshot().Loaded })

	if err := s.Commands.StartTx(context.Background()); err != nil {
		t.Fatalf("StartTx: %v", err)
	}
	eventually(t, "tx badge running", func() bool { return s.View().TxBadge == BadgeRunning })
	if s.View().RxBadge != BadgeStopped {
		t.Error("rx badge changed")
	}
}

func TestMetersFromPolls(t *testing.T) {
	s := newTestSession(t, newFakeIntercom(), false)
	s.Start()
	eventually(t, "metrics and peers", func() bool {
		snap := s.Store.Snapshot()
		return snap.Metrics != nil && len(snap.Peers) == 1
	})

	v := s.View()
	if math.Abs(v.Mix.View.RatioPercent-69.5) > 0.01 || v.Mix.View.Severity != telemetry.Elevated {
		t.Errorf("mix meter = %+v", v.Mix.View)
	}
	peer := v.Peers[0].Meter.View
	if math.Abs(peer.RatioPercent-33.333) > 0.01 || peer.Severity != telemetry.Nominal {
		t.Errorf("peer meter = %+v", peer)
	}
	if v.Mic.Label != "--" || v.Mic.View.RatioPercent != 0 {
		t.Errorf("mic meter = %+v", v.Mic)
	}
}

func TestSaveAutoPlaybackHidesFilePath(t *testing.T) {
	fake := newFakeIntercom()
	s := newTestSession(t, fake, false)
	s.Start()
	eventually(t, "initial status", func() bool { return s.Store.Snapshot().Loaded })
	if s.View().RxSinkPath == nil {
		t.Fatal("file sink path should apply initially")
	}

	s.Config.SetRxSink(types.RxSinkAuto)
	before := fake.statusCount()
	if err := s.Config.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	eventually(t, "status refresh after save", func() bool { return fake.statusCount() > before })
	eventually(t, "refreshed status applied", func() bool { return s.View().RxSinkMode == types.RxSinkAuto && !s.Config.Dirty() })

	if v := s.View(); v.RxSinkPath != nil {
		t.Errorf("file path still applies: %q", *v.RxSinkPath)
	}
}

func TestHiddenSessionDoesNotPoll(t *testing.T) {
	fake := newFakeIntercom()
	s := newTestSession(t, fake, true)
	s.Start()
	time.Sleep(100 * time.Millisecond)

	if n := fake.statusCount(); n != 0 {
		t.Fatalf("hidden session fetched status %d times", n)
	}
	if st := s.Scheduler.Stats(TaskMetrics); st.Runs != 0 || st.Skipped == 0 {
		t.Errorf("metrics stats while hidden = %+v", st)
	}

	s.SetVisible(true)
	eventually(t, "status after resume", func() bool { return s.Store.Snapshot().Loaded })
}

func TestMicSourceAutoFillsThroughDevicesTask(t *testing.T) {
	s := newTestSession(t, newFakeIntercom(), false)
	s.Start()
	eventually(t, "initial status", func() bool { return s.Store.Snapshot().Loaded })

	s.Config.SetTxSource(types.TxSourceMic)
	eventually(t, "mic device auto-filled", func() bool { return s.Config.Draft().MicDevice() == "hw:1,0" })
	if s.Store.Snapshot().Devices == nil {
		t.Error("device list not stored")
	}
}

func TestHiddenSessionKeepsPreviousValues(t *testing.T) {
	fake := newFakeIntercom()
	s := newTestSession(t, fake, false)
	s.Start()
	eventually(t, "metrics and peers", func() bool {
		snap := s.Store.Snapshot()
		return snap.Metrics != nil && len(snap.Peers) == 1
	})

	s.SetVisible(false)
	// let calls already in flight land before taking the reference snapshot
	time.Sleep(60 * time.Millisecond)
	before := s.Store.Snapshot()
	runs := s.Scheduler.Stats(TaskMetrics).Runs

	fake.setMetrics(`{"receiving":false,"pps_recent":0,"bps_recent":0,"mix_level_db":-3.0,"group":"239.69.69.69","port":5004}`)
	time.Sleep(150 * time.Millisecond)

	after := s.Store.Snapshot()
	if after.Revision != before.Revision {
		t.Errorf("revision moved while hidden: %d -> %d", before.Revision, after.Revision)
	}
	if after.Metrics == nil || !after.Metrics.Receiving || after.MixLevelDB == nil || *after.MixLevelDB != -18.3 || len(after.Peers) != 1 {
		t.Errorf("telemetry changed while hidden: %+v", after.Metrics)
	}
	if st := s.Scheduler.Stats(TaskMetrics); st.Runs != runs || st.Skipped == 0 {
		t.Errorf("metrics stats while hidden = %+v, runs before %d", st, runs)
	}

	s.SetVisible(true)
	eventually(t, "new metrics after resume", func() bool {
		m := s.Store.Snapshot().Metrics
		return m != nil && !m.Receiving
	})
}

func TestMicSwitchWhileHiddenDoesNotFillCanonicalConfig(t *testing.T) {
	fake := newFakeIntercom()
	micEmpty := types.DefaultDeviceConfig()
	micEmpty.SelectTxSource(types.TxSourceMic)
	fake.setConfig(micEmpty)

	s := newTestSession(t, fake, false)
	s.Start()
	eventually(t, "initial status", func() bool { return s.Store.Snapshot().Loaded })

	s.SetVisible(false)
	time.Sleep(30 * time.Millisecond)
	s.Config.SetTxSource(types.TxSourceSine)
	s.Config.SetTxSource(types.TxSourceMic)
	if !s.Config.Armed() {
		t.Fatal("switch to mic did not arm")
	}

	statuses := fake.statusCount()
	s.SetVisible(true)
	eventually(t, "status after resume replaces the draft", func() bool {
		return fake.statusCount() > statuses && !s.Config.Armed() && s.Config.Draft().MicDevice() == ""
	})

	runs := s.Scheduler.Stats(TaskDevices).Runs
	s.RefreshDevices()
	eventually(t, "device list fetched", func() bool {
		st := s.Scheduler.Stats(TaskDevices)
		return st.Runs > runs && st.InFlight == 0
	})
	time.Sleep(30 * time.Millisecond)

	d := s.Config.Draft()
	if d.TxKind() != types.TxSourceMic || d.MicDevice() != "" {
		t.Errorf("draft = %s %q, want canonical mic with no device", d.TxKind(), d.MicDevice())
	}
}
