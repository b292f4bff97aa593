package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/moyoez/partyline-console/device"
	"github.com/moyoez/partyline-console/state"
	"github.com/moyoez/partyline-console/tool"
)

// Action names a control action as used by the CLI and the dashboard.
type Action string

const (
	StartTx         Action = "start-tx"
	StopTx          Action = "stop-tx"
	StartRx         Action = "start-rx"
	StopRx          Action = "stop-rx"
	RestartBoth     Action = "restart"
	RestartBackend  Action = "restart-backend"
	StartMicMonitor Action = "mic-monitor-start"
	StopMicMonitor  Action = "mic-monitor-stop"

	SourceDownload = "download-mix"

	// RestartBackendNotice is shown instead of refreshing: the collaborator
	// exits and is unreachable until its supervisor brings it back.
	RestartBackendNotice = "Backend is restarting, the device will be unreachable for a few seconds"

	DefaultRate  = rate.Limit(5)
	DefaultBurst = 2
)

type route struct {
	path      string
	reconcile bool  // ask for a status refresh on success
	monitor   *bool // new mic monitor flag on success
	notice    string
}

var (
	monitorOn  = true
	monitorOff = false

	actions = map[Action]route{
		StartTx:         {path: device.PathStartTx, reconcile: true},
		StopTx:          {path: device.PathStopTx, reconcile: true},
		StartRx:         {path: device.PathStartRx, reconcile: true},
		StopRx:          {path: device.PathStopRx, reconcile: true},
		RestartBoth:     {path: device.PathRestart, reconcile: true},
		RestartBackend:  {path: device.PathRestartBackend, notice: RestartBackendNotice},
		StartMicMonitor: {path: device.PathMicMonitorStart, monitor: &monitorOn},
		StopMicMonitor:  {path: device.PathMicMonitorStop, monitor: &monitorOff},
	}
)

// Actions lists every action Run accepts.
func Actions() []Action {
	return []Action{StartTx, StopTx, StartRx, StopRx, RestartBoth, RestartBackend, StartMicMonitor, StopMicMonitor}
}

// ParseAction validates an action name.
func ParseAction(name string) (Action, error) {
	a := Action(name)
	if _, ok := actions[a]; !ok {
		return "", fmt.Errorf("unknown action %q", name)
	}
	return a, nil
}

// Remote is the part of the device client commands need.
type Remote interface {
	Post(ctx context.Context, path string, body any) (*device.Payload, error)
	Download(ctx context.Context, path string, w io.Writer) (int64, error)
}

// SaveAsFunc receives the downloaded mix positioned at its start. The file is
// closed and removed once it returns, whatever it returns.
type SaveAsFunc func(ctx context.Context, f *os.File) error

// Dispatcher issues control actions and reconciles state afterwards.
type Dispatcher struct {
	remote  Remote
	store   *state.Store
	refresh func()
	limiter *rate.Limiter
}

type Option func(*Dispatcher)

// WithRefresher sets the callback asking for an out-of-band status poll.
func WithRefresher(fn func()) Option {
	return func(d *Dispatcher) { d.refresh = fn }
}

// WithLimiter replaces the command pacing limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(d *Dispatcher) { d.limiter = l }
}

func New(remote Remote, store *state.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		remote:  remote,
		store:   store,
		limiter: rate.NewLimiter(DefaultRate, DefaultBurst),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run issues exactly one POST for a and applies its follow-up.
func (d *Dispatcher) Run(ctx context.Context, a Action) error {
	sp, ok := actions[a]
	if !ok {
		return fmt.Errorf("unknown action %q", a)
	}
	if err := d.limiter.Wait(ctx); err != nil {
		tool.DefaultLogger.Warnf("Action %s not sent: %v", a, err)
		d.store.ReportError(string(a), err)
		return err
	}

	start := time.Now()
	if _, err := d.remote.Post(ctx, sp.path, nil); err != nil {
		tool.DefaultLogger.Errorf("Action %s failed: %v", a, err)
		d.store.ReportError(string(a), err)
		return err
	}
	tool.DefaultLogger.Infof("Action %s done in %v", a, time.Since(start).Round(time.Millisecond))

	if sp.monitor != nil {
		d.store.SetMicMonitor(*sp.monitor)
	}
	if sp.notice != "" {
		d.store.ReportInfo(string(a), sp.notice)
	} else {
		d.store.ClearBanner()
	}
	if sp.reconcile && d.refresh != nil {
		d.refresh()
	}
	return nil
}

func (d *Dispatcher) StartTx(ctx context.Context) error         { return d.Run(ctx, StartTx) }
func (d *Dispatcher) StopTx(ctx context.Context) error          { return d.Run(ctx, StopTx) }
func (d *Dispatcher) StartRx(ctx context.Context) error         { return d.Run(ctx, StartRx) }
func (d *Dispatcher) StopRx(ctx context.Context) error          { return d.Run(ctx, StopRx) }
func (d *Dispatcher) RestartBoth(ctx context.Context) error     { return d.Run(ctx, RestartBoth) }
func (d *Dispatcher) RestartBackend(ctx context.Context) error  { return d.Run(ctx, RestartBackend) }
func (d *Dispatcher) StartMicMonitor(ctx context.Context) error { return d.Run(ctx, StartMicMonitor) }
func (d *Dispatcher) StopMicMonitor(ctx context.Context) error  { return d.Run(ctx, StopMicMonitor) }

// DownloadMix fetches the recorded mix into a temp file and hands it to
// saveAs. The temp file is released on every path out. Every failure is a
// *device.ResourceError.
func (d *Dispatcher) DownloadMix(ctx context.Context, saveAs SaveAsFunc) (err error) {
	defer func() {
		if err != nil {
			d.store.ReportError(SourceDownload, err)
		}
	}()
	if err := d.limiter.Wait(ctx); err != nil {
		return downloadFailed(err)
	}

	f, err := os.CreateTemp("", "partyline-mix-*.wav")
	if err != nil {
		return downloadFailed(fmt.Errorf("failed to create temp file: %w", err))
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			tool.DefaultLogger.Debugf("Temp mix close: %v", cerr)
		}
		if rerr := os.Remove(f.Name()); rerr != nil && !os.IsNotExist(rerr) {
			tool.DefaultLogger.Warnf("Failed to remove temp mix %s: %v", f.Name(), rerr)
		}
	}()

	n, err := d.remote.Download(ctx, device.PathDownloadMix, f)
	if err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return downloadFailed(fmt.Errorf("failed to rewind temp mix: %w", err))
	}
	if err := saveAs(ctx, f); err != nil {
		return downloadFailed(fmt.Errorf("save mix: %w", err))
	}
	tool.DefaultLogger.Infof("Mix downloaded (%d bytes)", n)
	d.store.ClearBanner()
	return nil
}

func downloadFailed(err error) error {
	return &device.ResourceError{Path: device.PathDownloadMix, Err: err}
}

// SaveToDir returns a SaveAsFunc that copies the mix to the first free
// mix.wav, mix-2.wav, ... in dir. onSaved, if set, receives the path.
func SaveToDir(dir string, onSaved func(path string)) SaveAsFunc {
	return func(ctx context.Context, f *os.File) error {
		path, err := tool.SaveReaderTo(ctx, dir, "mix.wav", f)
		if err != nil {
			return err
		}
		if onSaved != nil {
			onSaved(path)
		}
		return nil
	}
}
