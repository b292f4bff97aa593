package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/netip"

	"github.com/bytedance/sonic"
)

const (
	MinSineFreq = 20
	MaxSineFreq = 20000

	DefaultSineFreq  = 1000
	DefaultSinkPath  = "mix.wav"
	DefaultTxName    = "Unit A"
	DefaultTxSSRC    = 12345678
	DefaultMulticast = "239.69.69.69"
	DefaultPort      = 5004
)

// TxSourceKind is the wire value of tx_source.
type TxSourceKind string

const (
	TxSourceSine TxSourceKind = "sine"
	TxSourceMic  TxSourceKind = "mic"
)

// TxSource is the sender's audio source: SineSource or MicSource.
type TxSource interface {
	Kind() TxSourceKind
	isTxSource()
}

// SineSource generates a test tone.
type SineSource struct {
	Freq int
}

// MicSource captures from an ALSA device. An empty Device lets the collaborator pick.
type MicSource struct {
	Device string
}

func (SineSource) Kind() TxSourceKind { return TxSourceSine }
func (SineSource) isTxSource()        {}
func (MicSource) Kind() TxSourceKind  { return TxSourceMic }
func (MicSource) isTxSource()         {}

// RxSinkMode is the wire value of rx_sink.mode.
type RxSinkMode string

const (
	RxSinkFile RxSinkMode = "file"
	RxSinkAuto RxSinkMode = "auto"
)

// RxSink is where the collaborator sends the received mix: FileSink or AutoPlayback.
type RxSink interface {
	Mode() RxSinkMode
	isRxSink()
}

// FileSink writes the mix to a WAV file on the device.
type FileSink struct {
	Path string
}

// AutoPlayback plays the mix on the device's default output.
type AutoPlayback struct{}

func (FileSink) Mode() RxSinkMode     { return RxSinkFile }
func (FileSink) isRxSink()            {}
func (AutoPlayback) Mode() RxSinkMode { return RxSinkAuto }
func (AutoPlayback) isRxSink()        {}

// DeviceConfig is the collaborator's TX/RX configuration.
//
// TX and RxSink are tagged variants. Values belonging to a variant that is not
// selected (the sine frequency while the mic is active, the file path while
// auto playback is active) are retained and round-tripped, but never rendered.
// Keys the console does not know about are kept verbatim and echoed on save.
type DeviceConfig struct {
	TX          TxSource
	TxName      string
	TxSSRC      uint32
	TxMulticast string
	TxPort      uint16
	TxIface     *string

	RxMulticast string
	RxPort      uint16
	RxIface     *string
	RxSink      RxSink

	SSRCNames map[string]string

	sineFreq  int
	micDevice string
	sinkPath  string
	extra     map[string]json.RawMessage
}

// DefaultDeviceConfig mirrors the collaborator's factory defaults.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		TX:          SineSource{Freq: DefaultSineFreq},
		TxName:      DefaultTxName,
		TxSSRC:      DefaultTxSSRC,
		TxMulticast: DefaultMulticast,
		TxPort:      DefaultPort,
		RxMulticast: DefaultMulticast,
		RxPort:      DefaultPort,
		RxSink:      FileSink{Path: DefaultSinkPath},
		SSRCNames: map[string]string{
			"12345678": "Unit A",
			"23456789": "Unit B",
		},
		sineFreq: DefaultSineFreq,
		sinkPath: DefaultSinkPath,
	}
}

// SineFreq returns the sine frequency, active or retained.
func (c DeviceConfig) SineFreq() int {
	if s, ok := c.TX.(SineSource); ok {
		return s.Freq
	}
	return c.sineFreq
}

// MicDevice returns the mic device, active or retained.
func (c DeviceConfig) MicDevice() string {
	if m, ok := c.TX.(MicSource); ok {
		return m.Device
	}
	return c.micDevice
}

// SinkPath returns the file sink path, active or retained.
func (c DeviceConfig) SinkPath() string {
	if f, ok := c.RxSink.(FileSink); ok {
		return f.Path
	}
	return c.sinkPath
}

// TxKind returns the selected source kind, sine when unset.
func (c DeviceConfig) TxKind() TxSourceKind {
	if c.TX == nil {
		return TxSourceSine
	}
	return c.TX.Kind()
}

// SinkMode returns the selected sink mode, file when unset.
func (c DeviceConfig) SinkMode() RxSinkMode {
	if c.RxSink == nil {
		return RxSinkFile
	}
	return c.RxSink.Mode()
}

// SetTx selects src and records its payload as the retained value for its kind.
func (c *DeviceConfig) SetTx(src TxSource) {
	switch s := src.(type) {
	case SineSource:
		c.sineFreq = s.Freq
	case MicSource:
		c.micDevice = s.Device
	}
	c.TX = src
}

// SelectTxSource switches the source kind, restoring the retained payload.
func (c *DeviceConfig) SelectTxSource(kind TxSourceKind) {
	c.retainTx()
	switch kind {
	case TxSourceMic:
		c.TX = MicSource{Device: c.micDevice}
	default:
		freq := c.sineFreq
		if freq == 0 {
			freq = DefaultSineFreq
		}
		c.TX = SineSource{Freq: freq}
	}
}

// SetRxSink selects sink and records a file path as the retained path.
func (c *DeviceConfig) SetRxSink(sink RxSink) {
	if f, ok := sink.(FileSink); ok {
		c.sinkPath = f.Path
	}
	c.RxSink = sink
}

// SelectRxSink switches the sink mode, restoring the retained path.
func (c *DeviceConfig) SelectRxSink(mode RxSinkMode) {
	if f, ok := c.RxSink.(FileSink); ok {
		c.sinkPath = f.Path
	}
	switch mode {
	case RxSinkAuto:
		c.RxSink = AutoPlayback{}
	default:
		path := c.sinkPath
		if path == "" {
			path = DefaultSinkPath
		}
		c.RxSink = FileSink{Path: path}
	}
}

func (c *DeviceConfig) retainTx() {
	switch s := c.TX.(type) {
	case SineSource:
		c.sineFreq = s.Freq
	case MicSource:
		c.micDevice = s.Device
	}
}

// Clone returns a deep copy.
func (c DeviceConfig) Clone() DeviceConfig {
	out := c
	out.SSRCNames = maps.Clone(c.SSRCNames)
	out.extra = maps.Clone(c.extra)
	if c.TxIface != nil {
		v := *c.TxIface
		out.TxIface = &v
	}
	if c.RxIface != nil {
		v := *c.RxIface
		out.RxIface = &v
	}
	return out
}

// Extra returns the raw value of a key the console does not model.
func (c DeviceConfig) Extra(key string) (json.RawMessage, bool) {
	v, ok := c.extra[key]
	return v, ok
}

// Validate checks the fields the collaborator would otherwise clamp or reject.
func (c DeviceConfig) Validate() error {
	var errs []error
	if s, ok := c.TX.(SineSource); ok && (s.Freq < MinSineFreq || s.Freq > MaxSineFreq) {
		errs = append(errs, fmt.Errorf("tx_sine_freq %d out of range %d-%d", s.Freq, MinSineFreq, MaxSineFreq))
	}
	if err := checkMulticast("tx_multicast", c.TxMulticast); err != nil {
		errs = append(errs, err)
	}
	if err := checkMulticast("rx_multicast", c.RxMulticast); err != nil {
		errs = append(errs, err)
	}
	if c.TxPort == 0 {
		errs = append(errs, errors.New("tx_port must be non-zero"))
	}
	if c.RxPort == 0 {
		errs = append(errs, errors.New("rx_port must be non-zero"))
	}
	if f, ok := c.RxSink.(FileSink); ok && f.Path == "" {
		errs = append(errs, errors.New("rx_sink.path is required in file mode"))
	}
	return errors.Join(errs...)
}

func checkMulticast(field, value string) error {
	addr, err := netip.ParseAddr(value)
	if err != nil || !addr.Is4() {
		return fmt.Errorf("%s %q is not an IPv4 literal", field, value)
	}
	if !addr.IsMulticast() {
		return fmt.Errorf("%s %s is not a multicast group", field, value)
	}
	return nil
}

type rxSinkWire struct {
	Mode RxSinkMode `json:"mode"`
	Path string     `json:"path,omitempty"`
}

type deviceConfigWire struct {
	TxSource    TxSourceKind      `json:"tx_source"`
	TxSineFreq  int               `json:"tx_sine_freq"`
	TxMicDevice string            `json:"tx_mic_device"`
	TxName      string            `json:"tx_name"`
	TxSSRC      uint32            `json:"tx_ssrc"`
	TxMulticast string            `json:"tx_multicast"`
	TxPort      uint16            `json:"tx_port"`
	TxIface     *string           `json:"tx_iface"`
	RxMulticast string            `json:"rx_multicast"`
	RxPort      uint16            `json:"rx_port"`
	RxIface     *string           `json:"rx_iface"`
	RxSink      rxSinkWire        `json:"rx_sink"`
	SSRCNames   map[string]string `json:"ssrc_names"`
}

var knownConfigKeys = map[string]struct{}{
	"tx_source": {}, "tx_sine_freq": {}, "tx_mic_device": {}, "tx_name": {},
	"tx_ssrc": {}, "tx_multicast": {}, "tx_port": {}, "tx_iface": {},
	"rx_multicast": {}, "rx_port": {}, "rx_iface": {}, "rx_sink": {},
	"ssrc_names": {},
}

// MarshalJSON writes the full flat wire object, extra keys included.
func (c DeviceConfig) MarshalJSON() ([]byte, error) {
	w := deviceConfigWire{
		TxSource:    c.TxKind(),
		TxSineFreq:  c.SineFreq(),
		TxMicDevice: c.MicDevice(),
		TxName:      c.TxName,
		TxSSRC:      c.TxSSRC,
		TxMulticast: c.TxMulticast,
		TxPort:      c.TxPort,
		TxIface:     c.TxIface,
		RxMulticast: c.RxMulticast,
		RxPort:      c.RxPort,
		RxIface:     c.RxIface,
		RxSink:      rxSinkWire{Mode: c.SinkMode(), Path: c.SinkPath()},
		SSRCNames:   c.SSRCNames,
	}
	if w.SSRCNames == nil {
		w.SSRCNames = map[string]string{}
	}
	known, err := sonic.Marshal(w)
	if err != nil {
		return nil, err
	}
	if len(c.extra) == 0 {
		return known, nil
	}
	merged := make(map[string]json.RawMessage, len(c.extra)+len(knownConfigKeys))
	maps.Copy(merged, c.extra)
	var fields map[string]json.RawMessage
	if err := sonic.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	maps.Copy(merged, fields)
	return sonic.Marshal(merged)
}

// UnmarshalJSON reads the flat wire object. Missing keys fall back to the
// defaults the collaborator would apply.
func (c *DeviceConfig) UnmarshalJSON(data []byte) error {
	def := DefaultDeviceConfig()
	w := deviceConfigWire{
		TxSource:    TxSourceSine,
		TxSineFreq:  DefaultSineFreq,
		TxName:      def.TxName,
		TxSSRC:      def.TxSSRC,
		TxMulticast: def.TxMulticast,
		TxPort:      def.TxPort,
		RxMulticast: def.RxMulticast,
		RxPort:      def.RxPort,
		RxSink:      rxSinkWire{Mode: RxSinkFile, Path: DefaultSinkPath},
	}
	if err := sonic.Unmarshal(data, &w); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := sonic.Unmarshal(data, &all); err != nil {
		return err
	}

	out := DeviceConfig{
		TxName:      w.TxName,
		TxSSRC:      w.TxSSRC,
		TxMulticast: w.TxMulticast,
		TxPort:      w.TxPort,
		TxIface:     w.TxIface,
		RxMulticast: w.RxMulticast,
		RxPort:      w.RxPort,
		RxIface:     w.RxIface,
		SSRCNames:   w.SSRCNames,
		sineFreq:    w.TxSineFreq,
		micDevice:   w.TxMicDevice,
		sinkPath:    w.RxSink.Path,
	}
	if _, ok := all["ssrc_names"]; !ok {
		out.SSRCNames = def.SSRCNames
	} else if out.SSRCNames == nil {
		out.SSRCNames = map[string]string{}
	}
	if w.TxSource == TxSourceMic {
		out.TX = MicSource{Device: w.TxMicDevice}
	} else {
		out.TX = SineSource{Freq: w.TxSineFreq}
	}
	if w.RxSink.Mode == RxSinkAuto {
		out.RxSink = AutoPlayback{}
	} else {
		path := w.RxSink.Path
		if path == "" {
			path = DefaultSinkPath
		}
		out.RxSink = FileSink{Path: path}
		out.sinkPath = path
	}
	for k, v := range all {
		if _, ok := knownConfigKeys[k]; ok {
			continue
		}
		if out.extra == nil {
			out.extra = make(map[string]json.RawMessage)
		}
		out.extra[k] = v
	}
	*c = out
	return nil
}
