// Package netconf answers the guest networking queries. The result is the
// serialized property set of the primary NIC; changing the configuration is
// not supported on POSIX guests and reports as such.
package netconf

import (
	"encoding/json"
	"strings"

	gnet "github.com/shirou/gopsutil/v4/net"

	"github.com/loykin/guestexec/internal/request"
	"github.com/loykin/guestexec/internal/status"
)

// Config is the property set reported for the primary NIC.
type Config struct {
	Interface  string `json:"interface"`
	MACAddress string `json:"mac_address"`
	IPAddress  string `json:"ip_address"`
}

// GetPrimaryConfig serializes the primary NIC's properties. The primary NIC
// is the first interface that is up, not loopback, and carries an IPv4
// address.
func GetPrimaryConfig() ([]byte, error) {
	ifaces, err := gnet.Interfaces()
	if err != nil {
		return nil, status.Wrap(status.ErrFail, err)
	}
	for _, iface := range ifaces {
		if !hasFlag(iface.Flags, "up") || hasFlag(iface.Flags, "loopback") {
			continue
		}
		ip := firstIPv4(iface.Addrs)
		if ip == "" {
			continue
		}
		cfg := Config{
			Interface:  iface.Name,
			MACAddress: iface.HardwareAddr,
			IPAddress:  ip,
		}
		out, err := json.Marshal(cfg)
		if err != nil {
			return nil, status.Wrap(status.ErrFail, err)
		}
		return out, nil
	}
	return nil, status.Errf(status.ErrNotFound, "no configured network interface")
}

// SetConfig applies a DHCP/static address change. Not implemented on POSIX.
func SetConfig(request.SetNetworkConfig) error {
	return status.Errf(status.ErrUnsupported, "network configuration changes")
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, want) {
			return true
		}
	}
	return false
}

func firstIPv4(addrs []gnet.InterfaceAddr) string {
	for _, a := range addrs {
		addr := a.Addr
		if i := strings.IndexByte(addr, '/'); i >= 0 {
			addr = addr[:i]
		}
		if strings.Count(addr, ".") == 3 {
			return addr
		}
	}
	return ""
}
