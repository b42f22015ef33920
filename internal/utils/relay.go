package utils

import (
	"net"
	"strings"
)

// cgnat is 100.64.0.0/10, used by carrier-grade NAT, Cloudflare WARP and Tailscale.
var cgnat = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// tunnelNames are interface name fragments of VPN and virtual adapters.
var tunnelNames = []string{"tun", "tap", "wg", "ppp", "warp"}

// netInterface is the part of a network interface the relay heuristic reads.
type netInterface struct {
	Name     string
	Up       bool
	Loopback bool
	IPs      []net.IP
}

// RelayReason reports why direct peer connectivity is unlikely, such as a
// VPN adapter or a CGNAT address, or "" when nothing suggests it.
func RelayReason() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}

	list := make([]netInterface, 0, len(ifaces))
	for _, iface := range ifaces {
		ni := netInterface{
			Name:     iface.Name,
			Up:       iface.Flags&net.FlagUp != 0,
			Loopback: iface.Flags&net.FlagLoopback != 0,
		}
		if addrs, err := iface.Addrs(); err == nil {
			for _, addr := range addrs {
				switch v := addr.(type) {
				case *net.IPNet:
					ni.IPs = append(ni.IPs, v.IP)
				case *net.IPAddr:
					ni.IPs = append(ni.IPs, v.IP)
				}
			}
		}
		list = append(list, ni)
	}
	return relayReason(list)
}

func relayReason(ifaces []netInterface) string {
	for _, iface := range ifaces {
		if !iface.Up || iface.Loopback {
			continue
		}

		name := strings.ToLower(iface.Name)
		for _, frag := range tunnelNames {
			if strings.Contains(name, frag) {
				return "tunnel interface " + iface.Name
			}
		}

		for _, ip := range iface.IPs {
			if cgnat.Contains(ip) {
				return "CGNAT address " + ip.String() + " on " + iface.Name
			}
		}
	}
	return ""
}
