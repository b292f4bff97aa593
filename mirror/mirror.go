package mirror

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/moyoez/partyline-console/state"
	"github.com/moyoez/partyline-console/tool"
	"github.com/moyoez/partyline-console/types"
)

const (
	qos          = 0
	queueSize    = 32
	disconnectMs = 250
)

// Publisher is the subset of mqtt.Client the mirror needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Connect opens a broker connection for the mirror.
func Connect(cfg types.MirrorConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		tool.DefaultLogger.Infof("Mirror connected to %s", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		tool.DefaultLogger.Warnf("Mirror connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}

// Disconnect closes a client returned by Connect.
func Disconnect(client mqtt.Client) {
	client.Disconnect(disconnectMs)
}

// Mirror republishes state changes to MQTT topics under a prefix:
// <prefix>/status, <prefix>/metrics, <prefix>/peers and <prefix>/banner.
type Mirror struct {
	pub     Publisher
	store   *state.Store
	prefix  string
	changes chan state.Slice
	dropped atomic.Uint64
}

func New(pub Publisher, store *state.Store, prefix string) *Mirror {
	return &Mirror{
		pub:     pub,
		store:   store,
		prefix:  strings.TrimSuffix(prefix, "/"),
		changes: make(chan state.Slice, queueSize),
	}
}

// Attach subscribes to the store. Changes are queued without blocking the
// writer; when the queue is full they are dropped and counted.
func (m *Mirror) Attach() func() {
	return m.store.Subscribe(func(c state.Change) {
		switch c.Slice {
		case state.SliceStatus, state.SliceMetrics, state.SlicePeers, state.SliceBanner:
		default:
			return
		}
		select {
		case m.changes <- c.Slice:
		default:
			m.dropped.Add(1)
		}
	})
}

// Dropped returns how many changes were lost to a full queue.
func (m *Mirror) Dropped() uint64 {
	return m.dropped.Load()
}

// Start publishes queued changes until ctx is done.
func (m *Mirror) Start(ctx context.Context) {
	tool.DefaultLogger.Infof("Mirror publishing under %s/", m.prefix)
	for {
		select {
		case <-ctx.Done():
			return
		case slice := <-m.changes:
			if err := m.publish(slice); err != nil {
				tool.DefaultLogger.Warnf("Mirror: %v", err)
			}
		}
	}
}

func (m *Mirror) publish(slice state.Slice) error {
	snap := m.store.Snapshot()
	var body any
	switch slice {
	case state.SliceStatus:
		body = snap.Status
	case state.SliceMetrics:
		if snap.Metrics == nil {
			return nil
		}
		body = snap.Metrics
	case state.SlicePeers:
		body = types.PeersResponse{Peers: snap.Peers, MixLevelDB: snap.MixLevelDB}
	case state.SliceBanner:
		body = snap.Banner
	default:
		return nil
	}
	payload, err := sonic.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", slice, err)
	}
	topic := m.prefix + "/" + string(slice)
	token := m.pub.Publish(topic, qos, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish %s: %w", topic, token.Error())
	}
	return nil
}
