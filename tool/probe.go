package tool

import (
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// QuickICMPProbe sends a single echo request and reports whether a reply came back.
func QuickICMPProbe(host string, timeout time.Duration) bool {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		DefaultLogger.Debugf("QuickICMPProbe: %s: %v", host, err)
		return false
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(false)
	if err := pinger.Run(); err != nil {
		DefaultLogger.Debugf("QuickICMPProbe: %s: %v", host, err)
		return false
	}
	return pinger.Statistics().PacketsRecv > 0
}

// WaitReachable probes host until it answers or the deadline passes.
func WaitReachable(host string, interval, deadline time.Duration) bool {
	until := time.Now().Add(deadline)
	for time.Now().Before(until) {
		if QuickICMPProbe(host, interval) {
			return true
		}
		time.Sleep(interval)
	}
	return false
}
