package configstate

import (
	"context"
	"fmt"
	"sync"
	"time"

	ttlworker "github.com/FloatTech/ttl"

	"github.com/moyoez/partyline-console/state"
	"github.com/moyoez/partyline-console/tool"
	"github.com/moyoez/partyline-console/types"
)

const (
	// DeviceListTTL bounds how long an ALSA listing is reused for auto-fill.
	DeviceListTTL = 30 * time.Second

	SourceSave = "save"

	deviceCacheKey = "alsa"
)

// Remote is the part of the device client a save needs.
type Remote interface {
	SaveConfig(ctx context.Context, cfg types.DeviceConfig) (types.SaveConfigResponse, error)
}

// State mediates between local draft edits and the server-confirmed config
// held in the store.
type State struct {
	store  *state.Store
	remote Remote

	refresh        func()
	requestDevices func()
	devices        *ttlworker.Cache[string, *types.AlsaDevicesResponse]

	mu    sync.Mutex
	armed bool
}

type Option func(*State)

// WithRefresher sets the callback asking for an out-of-band status poll.
func WithRefresher(fn func()) Option {
	return func(s *State) { s.refresh = fn }
}

// WithDeviceRequester sets the callback asking for the ALSA device list.
// The result must come back through OnDevices.
func WithDeviceRequester(fn func()) Option {
	return func(s *State) { s.requestDevices = fn }
}

// WithDeviceTTL overrides how long a device listing is reused.
func WithDeviceTTL(ttl time.Duration) Option {
	return func(s *State) { s.devices = ttlworker.NewCache[string, *types.AlsaDevicesResponse](ttl) }
}

func New(store *state.Store, remote Remote, opts ...Option) *State {
	s := &State{
		store:  store,
		remote: remote,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.devices == nil {
		s.devices = ttlworker.NewCache[string, *types.AlsaDevicesResponse](DeviceListTTL)
	}
	return s
}

// Draft returns a copy of the current draft.
func (s *State) Draft() types.DeviceConfig {
	cfg, _ := s.store.Draft()
	return cfg
}

// Dirty reports whether the draft has unsaved edits.
func (s *State) Dirty() bool {
	return s.store.Dirty()
}

// Load overwrites the draft with a canonical config. A pending auto-fill
// belonged to the replaced draft and is dropped.
func (s *State) Load(cfg types.DeviceConfig) {
	s.disarm()
	s.store.ApplyCanonicalConfig(cfg)
}

// LoadStatus applies a status payload: run state plus the canonical config,
// which replaces the draft like Load.
func (s *State) LoadStatus(st types.StatusResponse) {
	s.disarm()
	s.store.ApplyStatus(st)
}

// Edit mutates the draft directly. It never arms the mic auto-fill.
func (s *State) Edit(fn func(*types.DeviceConfig)) uint64 {
	return s.store.EditDraft(fn)
}

// ApplyPatch applies a partial edit to the draft. Switching the source from
// sine to mic with no device chosen arms a one-shot fill from the
// collaborator's recommended device.
func (s *State) ApplyPatch(p types.ConfigPatch) uint64 {
	var t transition
	rev := s.store.EditDraft(func(c *types.DeviceConfig) {
		t = patchDraft(c, p)
	})
	s.afterPatch(t, p)
	return rev
}

// ApplyPatchAt is ApplyPatch guarded by the draft revision the caller saw.
func (s *State) ApplyPatchAt(rev uint64, p types.ConfigPatch) bool {
	var t transition
	ok := s.store.EditDraftAt(rev, func(c *types.DeviceConfig) bool {
		t = patchDraft(c, p)
		return true
	})
	if ok {
		s.afterPatch(t, p)
	}
	return ok
}

type transition struct {
	before, after types.TxSourceKind
	deviceEmpty   bool
}

func patchDraft(c *types.DeviceConfig, p types.ConfigPatch) transition {
	t := transition{before: c.TxKind()}
	applyPatch(c, p)
	t.after = c.TxKind()
	t.deviceEmpty = c.MicDevice() == ""
	return t
}

// afterPatch arms or disarms the auto-fill. Any explicit device edit,
// including to "", consumes the arm.
func (s *State) afterPatch(t transition, p types.ConfigPatch) {
	switch {
	case t.after != types.TxSourceMic || p.TxMicDevice != nil:
		s.disarm()
	case t.before != types.TxSourceMic && t.deviceEmpty:
		s.arm()
	}
}

func (s *State) SetTxSource(kind types.TxSourceKind) uint64 {
	return s.ApplyPatch(types.ConfigPatch{TxSource: &kind})
}

func (s *State) SetSineFreq(freq int) uint64 {
	return s.ApplyPatch(types.ConfigPatch{TxSineFreq: &freq})
}

func (s *State) SetMicDevice(device string) uint64 {
	return s.ApplyPatch(types.ConfigPatch{TxMicDevice: &device})
}

func (s *State) SetTxName(name string) uint64 {
	return s.ApplyPatch(types.ConfigPatch{TxName: &name})
}

func (s *State) SetRxSink(mode types.RxSinkMode) uint64 {
	return s.ApplyPatch(types.ConfigPatch{RxSinkMode: &mode})
}

func (s *State) SetRxSinkPath(path string) uint64 {
	return s.ApplyPatch(types.ConfigPatch{RxSinkPath: &path})
}

func (s *State) SetSSRCName(ssrc uint32, name string) uint64 {
	return s.ApplyPatch(types.ConfigPatch{SSRCNames: map[string]string{fmt.Sprint(ssrc): name}})
}

func (s *State) arm() {
	s.mu.Lock()
	s.armed = true
	s.mu.Unlock()
	if cached := s.devices.Get(deviceCacheKey); cached != nil {
		s.fill(cached)
		return
	}
	if s.requestDevices != nil {
		s.requestDevices()
	}
}

func (s *State) disarm() {
	s.mu.Lock()
	s.armed = false
	s.mu.Unlock()
}

// Armed reports whether a device auto-fill is waiting for a listing.
func (s *State) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// OnDevices receives a fresh ALSA listing. It caches it and, if a fill is
// armed, consumes the arm.
func (s *State) OnDevices(resp types.AlsaDevicesResponse) {
	s.devices.Set(deviceCacheKey, &resp)
	s.fill(&resp)
}

func (s *State) fill(resp *types.AlsaDevicesResponse) {
	s.mu.Lock()
	if !s.armed {
		s.mu.Unlock()
		return
	}
	s.armed = false
	s.mu.Unlock()

	if resp.Recommended == "" {
		return
	}
	filled := s.store.EditDraftIf(func(c *types.DeviceConfig) bool {
		if c.TxKind() != types.TxSourceMic || c.MicDevice() != "" {
			return false
		}
		c.SetTx(types.MicSource{Device: resp.Recommended})
		return true
	})
	if filled {
		tool.DefaultLogger.Infof("Mic device set to recommended %s", resp.Recommended)
	}
}

// Save submits the entire draft. On success the returned config, if any,
// replaces the draft and a status refresh is requested. On failure the error
// goes to the banner and the draft is kept.
func (s *State) Save(ctx context.Context) error {
	draft, _ := s.store.Draft()
	resp, err := s.remote.SaveConfig(ctx, draft)
	if err != nil {
		s.store.ReportError(SourceSave, fmt.Errorf("save config: %w", err))
		return err
	}
	if resp.Config != nil {
		s.Load(*resp.Config)
	}
	if resp.TxRunning != nil && resp.RxRunning != nil {
		s.store.ApplyRunStatus(types.RunStatus{TxRunning: *resp.TxRunning, RxRunning: *resp.RxRunning})
	}
	s.store.ClearBanner()
	if s.refresh != nil {
		s.refresh()
	}
	return nil
}

func applyPatch(c *types.DeviceConfig, p types.ConfigPatch) {
	if p.TxSource != nil {
		c.SelectTxSource(*p.TxSource)
	}
	if p.TxSineFreq != nil {
		if c.TxKind() == types.TxSourceSine {
			c.SetTx(types.SineSource{Freq: *p.TxSineFreq})
		} else {
			retained := c.TX
			c.SetTx(types.SineSource{Freq: *p.TxSineFreq})
			c.SetTx(retained)
		}
	}
	if p.TxMicDevice != nil {
		if c.TxKind() == types.TxSourceMic {
			c.SetTx(types.MicSource{Device: *p.TxMicDevice})
		} else {
			retained := c.TX
			c.SetTx(types.MicSource{Device: *p.TxMicDevice})
			c.SetTx(retained)
		}
	}
	if p.TxName != nil {
		c.TxName = *p.TxName
	}
	if p.TxSSRC != nil {
		c.TxSSRC = *p.TxSSRC
	}
	if p.TxMulticast != nil {
		c.TxMulticast = *p.TxMulticast
	}
	if p.TxPort != nil {
		c.TxPort = *p.TxPort
	}
	if p.TxIface != nil {
		c.TxIface = optional(*p.TxIface)
	}
	if p.RxMulticast != nil {
		c.RxMulticast = *p.RxMulticast
	}
	if p.RxPort != nil {
		c.RxPort = *p.RxPort
	}
	if p.RxIface != nil {
		c.RxIface = optional(*p.RxIface)
	}
	if p.RxSinkMode != nil {
		c.SelectRxSink(*p.RxSinkMode)
	}
	if p.RxSinkPath != nil {
		if c.SinkMode() == types.RxSinkFile {
			c.SetRxSink(types.FileSink{Path: *p.RxSinkPath})
		} else {
			retained := c.RxSink
			c.SetRxSink(types.FileSink{Path: *p.RxSinkPath})
			c.SetRxSink(retained)
		}
	}
	if len(p.SSRCNames) > 0 {
		if c.SSRCNames == nil {
			c.SSRCNames = make(map[string]string, len(p.SSRCNames))
		}
		for k, v := range p.SSRCNames {
			if v == "" {
				delete(c.SSRCNames, k)
				continue
			}
			c.SSRCNames[k] = v
		}
	}
}

// optional maps the empty string to "unset", which the collaborator reads
// as "any interface".
func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
