package discover

import (
	"fmt"
	"net"
	"strings"
)

// maxHostsPerNet bounds how many addresses one interface network contributes.
const maxHostsPerNet = 254

// Targets lists the IPv4 hosts sharing a network with the local interfaces.
// With iface set only that interface's networks are used. Local addresses are
// never returned.
func Targets(iface string) ([]string, error) {
	addrs, err := interfaceAddrs(iface)
	if err != nil {
		return nil, err
	}
	self := make(map[string]struct{})
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok {
			self[ipnet.IP.String()] = struct{}{}
		}
	}

	seen := make(map[string]struct{})
	var targets []string
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() || ipnet.IP.To4() == nil {
			continue
		}
		for _, ip := range networkIPs(ipnet) {
			if _, isSelf := self[ip]; isSelf {
				continue
			}
			if _, dup := seen[ip]; dup {
				continue
			}
			seen[ip] = struct{}{}
			targets = append(targets, ip)
		}
	}
	return targets, nil
}

func interfaceAddrs(name string) ([]net.Addr, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "*" {
		return net.InterfaceAddrs()
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("interface %s: %w", name, err)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, fmt.Errorf("interface %s: %w", name, err)
	}
	return addrs, nil
}

// networkIPs enumerates host addresses of ipnet, capped at maxHostsPerNet.
// Networks wider than /24 are scanned from their first hosts only.
func networkIPs(ipnet *net.IPNet) []string {
	ip := ipnet.IP.To4()
	if ip == nil {
		return nil
	}
	ones, bits := ipnet.Mask.Size()
	if bits != 32 || ones >= 31 {
		return nil
	}
	network := ip.Mask(ipnet.Mask)
	hostBits := 32 - ones

	hosts := maxHostsPerNet
	if hostBits < 8 {
		hosts = (1 << hostBits) - 2
	}
	base := uint32(network[0])<<24 | uint32(network[1])<<16 | uint32(network[2])<<8 | uint32(network[3])

	ips := make([]string, 0, hosts)
	for i := 1; i <= hosts; i++ {
		n := base + uint32(i)
		ips = append(ips, net.IPv4(byte(n>>24), byte(n>>16), byte(n>>8), byte(n)).String())
	}
	return ips
}
