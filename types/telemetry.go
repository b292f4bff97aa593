package types

// RunStatus is a snapshot of which roles are running on the device.
type RunStatus struct {
	TxRunning bool `json:"tx_running"`
	RxRunning bool `json:"rx_running"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Config    DeviceConfig `json:"config"`
	TxRunning bool         `json:"tx_running"`
	RxRunning bool         `json:"rx_running"`
}

// RunStatus extracts the run-state part of the response.
func (s StatusResponse) RunStatus() RunStatus {
	return RunStatus{TxRunning: s.TxRunning, RxRunning: s.RxRunning}
}

// SaveConfigResponse is the body of POST /config. Config is the canonical
// echo and is nil when the collaborator answered with a bare ack.
type SaveConfigResponse struct {
	OK        bool          `json:"ok"`
	Config    *DeviceConfig `json:"config,omitempty"`
	TxRunning *bool         `json:"tx_running,omitempty"`
	RxRunning *bool         `json:"rx_running,omitempty"`
}

// RxMetrics is the body of GET /rx/metrics.
type RxMetrics struct {
	Receiving    bool     `json:"receiving"`
	PPSRecent    float64  `json:"pps_recent"`
	BPSRecent    float64  `json:"bps_recent"`
	MixLevelDB   *float64 `json:"mix_level_db"` // nil when nothing is mixed
	Group        string   `json:"group"`
	Port         int      `json:"port"`
	PacketsTotal uint64   `json:"packets_total,omitempty"`
	BytesTotal   uint64   `json:"bytes_total,omitempty"`
}

// PeerInfo is one remote talker as seen by the receiver.
type PeerInfo struct {
	SSRC        uint32   `json:"ssrc"`
	Name        string   `json:"name"`
	Packets     uint64   `json:"packets"`
	LevelDB     *float64 `json:"level_db"`
	LastSeenSec float64  `json:"last_seen_sec"`
}

// PeersResponse is the body of GET /rx/peers.
type PeersResponse struct {
	Peers      []PeerInfo `json:"peers"`
	MixLevelDB *float64   `json:"mix_level_db"`
}

// MicLevel is the body of GET /monitor/mic/level.
type MicLevel struct {
	DB *float64 `json:"db"`
}

// AlsaDevice is a capture device known to the collaborator.
type AlsaDevice struct {
	ID   string `json:"id"`
	Desc string `json:"desc"`
}

// AlsaDevicesResponse is the body of GET /alsa/devices.
type AlsaDevicesResponse struct {
	Devices     []AlsaDevice `json:"devices"`
	Recommended string       `json:"recommended"`
}

// Ack is the opaque acknowledgement returned by command endpoints.
type Ack struct {
	OK bool `json:"ok"`
}
