package tool

import (
	"net"
	"sort"
)

// LocalIPv4s lists the non-loopback IPv4 addresses of interfaces that are up.
func LocalIPv4s() []string {
	var result []string
	ifaces, err := net.Interfaces()
	if err != nil {
		return result
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if iface.Flags&net.FlagPointToPoint != 0 {
			continue // utun / tun / vpn
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip := ipnet.IP.To4(); ip != nil && !ip.IsLoopback() {
				result = append(result, ip.String())
			}
		}
	}
	sort.Strings(result)
	return result
}

// PreferredLANAddress picks the address to advertise in dashboard links.
func PreferredLANAddress() string {
	ips := LocalIPv4s()
	for _, ip := range ips {
		if parsed := net.ParseIP(ip); parsed != nil && parsed.IsPrivate() {
			return ip
		}
	}
	if len(ips) > 0 {
		return ips[0]
	}
	return "127.0.0.1"
}
