package types

// AppConfig is the console's own settings file. It never holds the device
// configuration, which lives on the collaborator.
type AppConfig struct {
	Base          string       `yaml:"base"`          // collaborator base address; empty means same-origin
	DashboardPort int          `yaml:"dashboardPort"` // local dashboard listener
	AllowRemote   bool         `yaml:"allowRemote"`   // serve the dashboard beyond localhost
	DownloadDir   string       `yaml:"downloadDir"`
	Log           string       `yaml:"log"`
	Insecure      bool         `yaml:"insecure"`     // skip TLS verification for self-signed devices
	NotifySocket  string       `yaml:"notifySocket"` // Unix socket of a desktop notification listener; empty disables
	Poll          PollConfig   `yaml:"poll"`
	Mirror        MirrorConfig `yaml:"mirror"`
}

// PollConfig holds task periods in milliseconds.
type PollConfig struct {
	MetricsMs  int `yaml:"metricsMs"`
	PeersMs    int `yaml:"peersMs"`
	MicLevelMs int `yaml:"micLevelMs"`
}

// MirrorConfig configures the optional MQTT telemetry mirror.
type MirrorConfig struct {
	Broker      string `yaml:"broker"` // e.g. tcp://localhost:1883; empty disables the mirror
	ClientID    string `yaml:"clientId"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topicPrefix"`
}

// Config holds runtime overrides from CLI flags.
type Config struct {
	Log           string
	UseConfigPath string
	UseBase       string
	UsePort       int
	UseDownload   string
	Hidden        bool // start with the view suspended
}

// ConfigPatch is a partial draft edit. Nil fields are left untouched.
type ConfigPatch struct {
	TxSource    *TxSourceKind     `json:"tx_source,omitempty"`
	TxSineFreq  *int              `json:"tx_sine_freq,omitempty"`
	TxMicDevice *string           `json:"tx_mic_device,omitempty"`
	TxName      *string           `json:"tx_name,omitempty"`
	TxSSRC      *uint32           `json:"tx_ssrc,omitempty"`
	TxMulticast *string           `json:"tx_multicast,omitempty"`
	TxPort      *uint16           `json:"tx_port,omitempty"`
	TxIface     *string           `json:"tx_iface,omitempty"`
	RxMulticast *string           `json:"rx_multicast,omitempty"`
	RxPort      *uint16           `json:"rx_port,omitempty"`
	RxIface     *string           `json:"rx_iface,omitempty"`
	RxSinkMode  *RxSinkMode       `json:"rx_sink_mode,omitempty"`
	RxSinkPath  *string           `json:"rx_sink_path,omitempty"`
	SSRCNames   map[string]string `json:"ssrc_names,omitempty"`
}
