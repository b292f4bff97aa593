package console

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/moyoez/partyline-console/command"
	"github.com/moyoez/partyline-console/configstate"
	"github.com/moyoez/partyline-console/device"
	"github.com/moyoez/partyline-console/poller"
	"github.com/moyoez/partyline-console/state"
	"github.com/moyoez/partyline-console/tool"
	"github.com/moyoez/partyline-console/types"
)

const (
	TaskStatus   = "status"
	TaskMetrics  = "metrics"
	TaskPeers    = "peers"
	TaskMicLevel = "mic-level"
	TaskDevices  = "devices"
)

// Options configures a Session.
type Options struct {
	Base     string // already resolved; empty means same-origin
	Insecure bool
	Poll     types.PollConfig
	Hidden   bool // start with the view suspended

	DeviceOptions    []device.Option
	SchedulerOptions []poller.Option
	CommandOptions   []command.Option
}

// Session wires the client, state, scheduler and dispatcher for one device.
type Session struct {
	ID        string
	Client    *device.Client
	Store     *state.Store
	Config    *configstate.State
	Scheduler *poller.Scheduler
	Commands  *command.Dispatcher

	visible atomic.Bool
	started atomic.Bool
}

func NewSession(opts Options) *Session {
	s := &Session{
		ID:    tool.GenerateSessionID(),
		Store: state.New(),
	}
	s.visible.Store(!opts.Hidden)

	devOpts := []device.Option{
		device.WithHTTPClient(tool.NewHTTPClient(opts.Insecure)),
		device.WithDownloadClient(tool.NewDownloadHTTPClient(opts.Insecure)),
	}
	s.Client = device.New(opts.Base, append(devOpts, opts.DeviceOptions...)...)

	schedOpts := []poller.Option{
		poller.WithVisibility(poller.VisibilityFunc(s.Visible)),
		poller.WithResumeRefresh(TaskStatus),
	}
	s.Scheduler = poller.New(append(schedOpts, opts.SchedulerOptions...)...)

	refreshStatus := func() { s.Scheduler.Refresh(TaskStatus) }
	s.Config = configstate.New(s.Store, s.Client,
		configstate.WithRefresher(refreshStatus),
		configstate.WithDeviceRequester(func() { s.Scheduler.Refresh(TaskDevices) }),
	)
	cmdOpts := append([]command.Option{command.WithRefresher(refreshStatus)}, opts.CommandOptions...)
	s.Commands = command.New(s.Client, s.Store, cmdOpts...)

	s.registerTasks(opts.Poll)
	return s
}

func (s *Session) registerTasks(poll types.PollConfig) {
	ms := func(v, def int) time.Duration {
		if v <= 0 {
			v = def
		}
		return time.Duration(v) * time.Millisecond
	}
	report := func(name string) func(error) {
		return func(err error) { s.Store.ReportError(name, err) }
	}

	s.Scheduler.Register(poller.NewTask(TaskStatus, 0, s.Client.Status,
		func(v types.StatusResponse) {
			s.Config.LoadStatus(v)
			s.Store.ResolveError(TaskStatus)
		}, report(TaskStatus)))

	s.Scheduler.Register(poller.NewTask(TaskMetrics, ms(poll.MetricsMs, tool.DefaultMetricsMs), s.Client.Metrics,
		func(v types.RxMetrics) {
			s.Store.ApplyMetrics(v)
			s.Store.ResolveError(TaskMetrics)
		}, report(TaskMetrics)))

	s.Scheduler.Register(poller.NewTask(TaskPeers, ms(poll.PeersMs, tool.DefaultPeersMs), s.Client.Peers,
		func(v types.PeersResponse) {
			s.Store.ApplyPeers(v)
			s.Store.ResolveError(TaskPeers)
		}, report(TaskPeers)))

	s.Scheduler.Register(poller.NewTask(TaskMicLevel, ms(poll.MicLevelMs, tool.DefaultMicLevelMs), s.Client.MicLevel,
		func(v types.MicLevel) {
			s.Store.ApplyMicLevel(v)
			s.Store.ResolveError(TaskMicLevel)
		}, report(TaskMicLevel)))

	devices := poller.NewTask(TaskDevices, 0, s.Client.AlsaDevices,
		func(v types.AlsaDevicesResponse) {
			s.Store.ApplyDevices(v)
			s.Config.OnDevices(v)
			s.Store.ResolveError(TaskDevices)
		}, report(TaskDevices))
	devices.Enabled = func() bool {
		return s.Config.Draft().TxKind() == types.TxSourceMic
	}
	s.Scheduler.Register(devices)
}

// Start begins polling and fetches the initial status.
func (s *Session) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	tool.DefaultLogger.Infof("Session %s polling %s", s.ID, s.Client.Origin())
	s.Scheduler.Start()
	s.Scheduler.Refresh(TaskStatus)
}

// Close stops every task. Calls already in flight finish and are discarded.
func (s *Session) Close() {
	s.Scheduler.Stop()
}

// Visible reports the current view visibility.
func (s *Session) Visible() bool {
	return s.visible.Load()
}

// SetVisible records the view's visibility. Polling is suspended while
// hidden and resumes, with a status refresh, when shown again. A device list
// request dropped while hidden is issued again if the auto-fill still waits.
func (s *Session) SetVisible(v bool) {
	if s.visible.Swap(v) == v {
		return
	}
	tool.DefaultLogger.Debugf("Session %s visible=%v", s.ID, v)
	if v && s.Config.Armed() {
		s.RefreshDevices()
	}
}

// RefreshStatus asks for an out-of-band status poll.
func (s *Session) RefreshStatus() {
	s.Scheduler.Refresh(TaskStatus)
}

// RefreshDevices asks for the ALSA device list. It only runs while the
// draft's source is the mic.
func (s *Session) RefreshDevices() {
	s.Scheduler.Refresh(TaskDevices)
}

// FetchStatus runs a one-shot status fetch outside the scheduler and applies
// it, for callers that are not polling.
func (s *Session) FetchStatus(ctx context.Context) (types.StatusResponse, error) {
	st, err := s.Client.Status(ctx)
	if err != nil {
		s.Store.ReportError(TaskStatus, err)
		return st, err
	}
	s.Config.LoadStatus(st)
	return st, nil
}
