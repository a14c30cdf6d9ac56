package iputil

import (
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/heyvito/gateway"
)

// NoAddressErr indicates that no default-route address could be detected.
var NoAddressErr = fmt.Errorf("no address could be detected")

// DefaultStatePort is used by ListenAddress when no port is given.
const DefaultStatePort = "2727"

// DefaultIP returns an address of an interface holding a default route.
func DefaultIP(preferIPv6 bool) (addr netip.Addr, err error) {
	var ips []netip.Addr
	ips, err = gateway.FindDefaultIPs()
	if err != nil {
		return
	}
	return pickIP(ips, preferIPv6)
}

func pickIP(ips []netip.Addr, preferIPv6 bool) (netip.Addr, error) {
	for _, v := range ips {
		if v.Is6() == preferIPv6 {
			return v, nil
		}
	}
	for _, v := range ips {
		return v, nil
	}
	return netip.Addr{}, NoAddressErr
}

// ListenAddress resolves a listener specification into a host:port pair.
// "auto" and "auto:PORT" bind to the default-route address; anything else is
// returned as-is, with DefaultStatePort added when it has no port.
func ListenAddress(addr string) (string, error) {
	return listenAddress(addr, DefaultIP)
}

func listenAddress(addr string, resolve func(bool) (netip.Addr, error)) (string, error) {
	host, port := addr, DefaultStatePort
	if h, p, err := net.SplitHostPort(addr); err == nil {
		host, port = h, p
	}
	if !strings.EqualFold(host, "auto") {
		return net.JoinHostPort(host, port), nil
	}

	ip, err := resolve(false)
	if err != nil {
		return "", fmt.Errorf("detecting default address: %w", err)
	}
	return net.JoinHostPort(ip.String(), port), nil
}
