package state

import (
	"slices"
	"sync"
	"time"

	"github.com/moyoez/partyline-console/types"
)

// Slice names one independently written part of the state.
type Slice string

const (
	SliceConfig     Slice = "config"
	SliceStatus     Slice = "status"
	SliceMetrics    Slice = "metrics"
	SlicePeers      Slice = "peers"
	SliceMicLevel   Slice = "mic_level"
	SliceDevices    Slice = "devices"
	SliceMicMonitor Slice = "mic_monitor"
	SliceBanner     Slice = "banner"
)

type BannerKind string

const (
	BannerError BannerKind = "error"
	BannerInfo  BannerKind = "info"
)

// Banner is the single operator-facing message. A newer one always replaces it.
type Banner struct {
	Kind    BannerKind `json:"kind"`
	Message string     `json:"message"`
	Source  string     `json:"source"`
	At      time.Time  `json:"at"`
}

// Change is delivered to subscribers after a slice was written.
type Change struct {
	Slice    Slice
	Revision uint64
}

// Snapshot is a consistent copy of the whole state.
type Snapshot struct {
	Loaded     bool                       `json:"loaded"`
	Config     types.DeviceConfig         `json:"config"`
	Dirty      bool                       `json:"dirty"`
	Revision   uint64                     `json:"revision"`
	Status     types.RunStatus            `json:"status"`
	Metrics    *types.RxMetrics           `json:"metrics"`
	Peers      []types.PeerInfo           `json:"peers"`
	MixLevelDB *float64                   `json:"mix_level_db"`
	MicLevel   types.MicLevel             `json:"mic_level"`
	Devices    *types.AlsaDevicesResponse `json:"devices"`
	MicMonitor bool                       `json:"mic_monitor"`
	Banner     *Banner                    `json:"banner"`
}

// Store is the UI state container. Each slice has a fixed set of mutation
// entry points; readers always get copies.
type Store struct {
	mu sync.RWMutex

	loaded   bool
	draft    types.DeviceConfig
	dirty    bool
	revision uint64

	status     types.RunStatus
	metrics    *types.RxMetrics
	peers      []types.PeerInfo
	mixLevelDB *float64
	micLevel   types.MicLevel
	devices    *types.AlsaDevicesResponse
	micMonitor bool
	banner     *Banner

	listeners map[int]func(Change)
	nextID    int
	now       func() time.Time
}

func New() *Store {
	return &Store{
		draft:     types.DefaultDeviceConfig(),
		peers:     []types.PeerInfo{},
		listeners: make(map[int]func(Change)),
		now:       time.Now,
	}
}

// Subscribe registers fn for change notifications and returns its cancel func.
// fn is called outside the store lock and must not block.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(changes ...Change) {
	s.mu.RLock()
	fns := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}

// ApplyStatus replaces the run state and overwrites the draft with the
// canonical config, discarding unsaved edits.
func (s *Store) ApplyStatus(resp types.StatusResponse) {
	s.mu.Lock()
	s.status = resp.RunStatus()
	rev := s.loadCanonicalLocked(resp.Config)
	s.mu.Unlock()
	s.notify(Change{Slice: SliceStatus, Revision: rev}, Change{Slice: SliceConfig, Revision: rev})
}

// ApplyRunStatus replaces only the run state.
func (s *Store) ApplyRunStatus(rs types.RunStatus) {
	s.mu.Lock()
	s.status = rs
	rev := s.revision
	s.mu.Unlock()
	s.notify(Change{Slice: SliceStatus, Revision: rev})
}

// ApplyCanonicalConfig overwrites the draft with a server-confirmed config.
func (s *Store) ApplyCanonicalConfig(cfg types.DeviceConfig) {
	s.mu.Lock()
	rev := s.loadCanonicalLocked(cfg)
	s.mu.Unlock()
	s.notify(Change{Slice: SliceConfig, Revision: rev})
}

func (s *Store) loadCanonicalLocked(cfg types.DeviceConfig) uint64 {
	s.draft = cfg.Clone()
	s.dirty = false
	s.loaded = true
	s.revision++
	return s.revision
}

// EditDraft applies fn to the draft and returns the new revision.
func (s *Store) EditDraft(fn func(*types.DeviceConfig)) uint64 {
	s.mu.Lock()
	fn(&s.draft)
	s.dirty = true
	s.revision++
	rev := s.revision
	s.mu.Unlock()
	s.notify(Change{Slice: SliceConfig, Revision: rev})
	return rev
}

// EditDraftAt applies fn only if the draft is still at revision rev. fn may
// decline by returning false, in which case nothing changes.
func (s *Store) EditDraftAt(rev uint64, fn func(*types.DeviceConfig) bool) bool {
	s.mu.Lock()
	if s.revision != rev {
		s.mu.Unlock()
		return false
	}
	next := s.draft.Clone()
	if !fn(&next) {
		s.mu.Unlock()
		return false
	}
	s.draft = next
	s.dirty = true
	s.revision++
	newRev := s.revision
	s.mu.Unlock()
	s.notify(Change{Slice: SliceConfig, Revision: newRev})
	return true
}

// EditDraftIf applies fn to a copy of the draft and keeps it only when fn
// returns true. Unlike EditDraftAt it does not care about intervening edits.
func (s *Store) EditDraftIf(fn func(*types.DeviceConfig) bool) bool {
	s.mu.Lock()
	next := s.draft.Clone()
	if !fn(&next) {
		s.mu.Unlock()
		return false
	}
	s.draft = next
	s.dirty = true
	s.revision++
	rev := s.revision
	s.mu.Unlock()
	s.notify(Change{Slice: SliceConfig, Revision: rev})
	return true
}

// Draft returns a copy of the draft and its revision.
func (s *Store) Draft() (types.DeviceConfig, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draft.Clone(), s.revision
}

// Dirty reports whether the draft was edited since the last canonical load.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

func (s *Store) ApplyMetrics(m types.RxMetrics) {
	s.mu.Lock()
	s.metrics = &m
	s.mixLevelDB = m.MixLevelDB
	s.mu.Unlock()
	s.notify(Change{Slice: SliceMetrics})
}

// ApplyPeers replaces the peer list. A mix level carried by the peers
// response overrides the one from metrics until the next metrics poll.
func (s *Store) ApplyPeers(p types.PeersResponse) {
	s.mu.Lock()
	s.peers = slices.Clone(p.Peers)
	if s.peers == nil {
		s.peers = []types.PeerInfo{}
	}
	if p.MixLevelDB != nil {
		v := *p.MixLevelDB
		s.mixLevelDB = &v
	}
	s.mu.Unlock()
	s.notify(Change{Slice: SlicePeers})
}

func (s *Store) ApplyMicLevel(m types.MicLevel) {
	s.mu.Lock()
	s.micLevel = m
	s.mu.Unlock()
	s.notify(Change{Slice: SliceMicLevel})
}

func (s *Store) ApplyDevices(d types.AlsaDevicesResponse) {
	s.mu.Lock()
	d.Devices = slices.Clone(d.Devices)
	s.devices = &d
	s.mu.Unlock()
	s.notify(Change{Slice: SliceDevices})
}

func (s *Store) SetMicMonitor(running bool) {
	s.mu.Lock()
	s.micMonitor = running
	s.mu.Unlock()
	s.notify(Change{Slice: SliceMicMonitor})
}

// ReportError replaces the banner with an error raised by source.
func (s *Store) ReportError(source string, err error) {
	if err == nil {
		return
	}
	s.setBanner(&Banner{Kind: BannerError, Message: err.Error(), Source: source})
}

// ReportInfo replaces the banner with a non-error message.
func (s *Store) ReportInfo(source, msg string) {
	s.setBanner(&Banner{Kind: BannerInfo, Message: msg, Source: source})
}

// ResolveError clears the banner if it is an error raised by source.
// Polling tasks call it on success so one task never hides another's failure.
func (s *Store) ResolveError(source string) {
	s.mu.Lock()
	if s.banner == nil || s.banner.Kind != BannerError || s.banner.Source != source {
		s.mu.Unlock()
		return
	}
	s.banner = nil
	s.mu.Unlock()
	s.notify(Change{Slice: SliceBanner})
}

// ClearBanner drops whatever banner is showing, used after an operator
// action succeeds.
func (s *Store) ClearBanner() {
	s.setBanner(nil)
}

func (s *Store) setBanner(b *Banner) {
	s.mu.Lock()
	if b == nil && s.banner == nil {
		s.mu.Unlock()
		return
	}
	if b != nil {
		b.At = s.now()
	}
	s.banner = b
	s.mu.Unlock()
	s.notify(Change{Slice: SliceBanner})
}

// Banner returns the current banner, nil when none is showing.
func (s *Store) Banner() *Banner {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.banner == nil {
		return nil
	}
	b := *s.banner
	return &b
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Loaded:     s.loaded,
		Config:     s.draft.Clone(),
		Dirty:      s.dirty,
		Revision:   s.revision,
		Status:     s.status,
		Peers:      slices.Clone(s.peers),
		MixLevelDB: s.mixLevelDB,
		MicLevel:   s.micLevel,
		MicMonitor: s.micMonitor,
	}
	if s.metrics != nil {
		m := *s.metrics
		snap.Metrics = &m
	}
	if s.devices != nil {
		d := *s.devices
		d.Devices = slices.Clone(d.Devices)
		snap.Devices = &d
	}
	if s.banner != nil {
		b := *s.banner
		snap.Banner = &b
	}
	return snap
}
