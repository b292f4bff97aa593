package device

import (
	"bytes"
	"context"

	"github.com/moyoez/partyline-console/types"
)

const (
	PathStatus          = "/status"
	PathMetrics         = "/rx/metrics"
	PathPeers           = "/rx/peers"
	PathMicLevel        = "/monitor/mic/level"
	PathAlsaDevices     = "/alsa/devices"
	PathConfig          = "/config"
	PathStartTx         = "/start/tx"
	PathStopTx          = "/stop/tx"
	PathStartRx         = "/start/rx"
	PathStopRx          = "/stop/rx"
	PathRestart         = "/restart"
	PathRestartBackend  = "/restart/backend"
	PathMicMonitorStart = "/monitor/mic/start"
	PathMicMonitorStop  = "/monitor/mic/stop"
	PathDownloadMix     = "/download/mix"
)

func getJSON[T any](ctx context.Context, c *Client, path string) (T, error) {
	var out T
	p, err := c.Get(ctx, path)
	if err != nil {
		return out, err
	}
	if err := p.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

// Status fetches the canonical config and run state.
func (c *Client) Status(ctx context.Context) (types.StatusResponse, error) {
	return getJSON[types.StatusResponse](ctx, c, PathStatus)
}

// Metrics fetches receiver throughput and mix level.
func (c *Client) Metrics(ctx context.Context) (types.RxMetrics, error) {
	return getJSON[types.RxMetrics](ctx, c, PathMetrics)
}

// Peers fetches the currently known talkers.
func (c *Client) Peers(ctx context.Context) (types.PeersResponse, error) {
	resp, err := getJSON[types.PeersResponse](ctx, c, PathPeers)
	if err == nil && resp.Peers == nil {
		resp.Peers = []types.PeerInfo{}
	}
	return resp, err
}

// MicLevel fetches the local mic monitor level.
func (c *Client) MicLevel(ctx context.Context) (types.MicLevel, error) {
	return getJSON[types.MicLevel](ctx, c, PathMicLevel)
}

// AlsaDevices fetches capture devices and the collaborator's recommendation.
func (c *Client) AlsaDevices(ctx context.Context) (types.AlsaDevicesResponse, error) {
	return getJSON[types.AlsaDevicesResponse](ctx, c, PathAlsaDevices)
}

// SaveConfig posts the entire config. A non-JSON ack decodes to an empty response.
func (c *Client) SaveConfig(ctx context.Context, cfg types.DeviceConfig) (types.SaveConfigResponse, error) {
	var out types.SaveConfigResponse
	p, err := c.Post(ctx, PathConfig, cfg)
	if err != nil {
		return out, err
	}
	if !p.IsJSON() || len(bytes.TrimSpace(p.Raw)) == 0 {
		out.OK = true
		return out, nil
	}
	if err := p.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
