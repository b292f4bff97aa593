// Package discover finds intercom units on the local networks by asking every
// neighbouring host for its status.
package discover

import (
	"context"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/moyoez/partyline-console/device"
	"github.com/moyoez/partyline-console/tool"
	"github.com/moyoez/partyline-console/types"
)

const (
	DefaultPort        = 8080
	DefaultConcurrency = 24
	// DefaultRatePPS paces ICMP probes; a /24 takes roughly ten seconds.
	DefaultRatePPS      = 30
	DefaultProbeTimeout = 200 * time.Millisecond
	statusTimeout       = 2 * time.Second
)

// Unit is an intercom that answered GET /status.
type Unit struct {
	Host      string `json:"host"`
	Origin    string `json:"origin"`
	Name      string `json:"name"`
	Source    string `json:"tx_source"`
	Multicast string `json:"tx_multicast"`
	Port      uint16 `json:"tx_port"`
	types.RunStatus
}

type Options struct {
	Port        int
	Concurrency int
	// RatePPS limits host probes per second. Zero means unlimited.
	RatePPS int
	// Probe pings each host before the HTTP request and skips silent ones.
	Probe        bool
	ProbeTimeout time.Duration
	HTTPClient   *http.Client
}

func (o *Options) normalize() {
	if o.Port <= 0 {
		o.Port = DefaultPort
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = DefaultProbeTimeout
	}
	if o.HTTPClient == nil {
		o.HTTPClient = tool.NewHTTPClient(false)
		o.HTTPClient.Timeout = statusTimeout
	}
}

// Scan asks every host for its status and returns the units that answered,
// ordered by host. Hosts that are unreachable or answer with something other
// than a status document are skipped silently.
func Scan(ctx context.Context, hosts []string, opts Options) ([]Unit, error) {
	opts.normalize()

	var limiter *rate.Limiter
	if opts.RatePPS > 0 {
		burst := max(opts.RatePPS+10, 20)
		limiter = rate.NewLimiter(rate.Limit(opts.RatePPS), burst)
	}

	var (
		mu    sync.Mutex
		units []Unit
		wg    sync.WaitGroup
	)
	sem := make(chan struct{}, opts.Concurrency)
	tool.DefaultLogger.Debugf("Scanning %d hosts on port %d (concurrency=%d, ratePPS=%d)", len(hosts), opts.Port, opts.Concurrency, opts.RatePPS)

	for _, host := range hosts {
		wg.Add(1)
		go func(host string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
			}
			if u, ok := scanHost(ctx, host, opts); ok {
				mu.Lock()
				units = append(units, u)
				mu.Unlock()
			}
		}(host)
	}
	wg.Wait()

	sort.Slice(units, func(i, j int) bool { return units[i].Host < units[j].Host })
	if err := ctx.Err(); err != nil {
		return units, err
	}
	return units, nil
}

func scanHost(ctx context.Context, host string, opts Options) (Unit, bool) {
	if opts.Probe && !tool.QuickICMPProbe(host, opts.ProbeTimeout) {
		return Unit{}, false
	}
	origin := "http://" + net.JoinHostPort(host, strconv.Itoa(opts.Port))
	p, err := device.New(origin, device.WithHTTPClient(opts.HTTPClient)).Get(ctx, device.PathStatus)
	if err != nil {
		tool.DefaultLogger.Debugf("scan %s: %v", origin, err)
		return Unit{}, false
	}
	// any JSON server would decode into defaults; require the config object
	if doc, ok := p.JSON.(map[string]any); !ok || doc["config"] == nil {
		return Unit{}, false
	}
	var st types.StatusResponse
	if err := p.Decode(&st); err != nil {
		tool.DefaultLogger.Debugf("scan %s: %v", origin, err)
		return Unit{}, false
	}
	tool.DefaultLogger.Infof("Found intercom at %s: %s", origin, st.Config.TxName)
	return Unit{
		Host:      host,
		Origin:    origin,
		Name:      st.Config.TxName,
		Source:    string(st.Config.TxKind()),
		Multicast: st.Config.TxMulticast,
		Port:      st.Config.TxPort,
		RunStatus: st.RunStatus(),
	}, true
}
