package network

import (
	"net"
	"os"
	"strings"

	"github.com/core-tools/hsu-launcher/pkg/logging"
)

// Interface name prefixes of virtualization and container bridges. Addresses
// on these interfaces are not reachable names for clients and are excluded
// from certificate SANs.
var virtualInterfacePrefixes = []string{
	"docker", "veth", "virbr", "br-", "lxc", "lxd",
	"vmnet", "vboxnet", "tun", "tap", "flannel", "cni", "wg",
}

// Resolver derives the set of network names a run config's certificate must
// cover. Lookup functions are fields so tests can substitute deterministic
// environments.
type Resolver struct {
	logger     logging.Logger
	interfaces func() ([]net.Interface, error)
	hostname   func() (string, error)
	lookupAddr func(addr string) ([]string, error)
	lookupHost func(host string) ([]string, error)
}

func NewResolver(logger logging.Logger) *Resolver {
	return &Resolver{
		logger:     logger,
		interfaces: net.Interfaces,
		hostname:   os.Hostname,
		lookupAddr: net.LookupAddr,
		lookupHost: net.LookupHost,
	}
}

// IsWildcard reports whether the bind address means "all interfaces"
func IsWildcard(host string) bool {
	return host == "0.0.0.0" || host == "::"
}

// LocalAddresses enumerates IPv4 addresses of the physical interfaces that
// are up, skipping virtualization bridges
func (r *Resolver) LocalAddresses() ([]string, error) {
	interfaces, err := r.interfaces()
	if err != nil {
		return nil, err
	}

	var addresses []string
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		if isVirtualInterface(iface.Name) {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			r.logger.Warnf("Failed to read interface addresses, interface: %s, error: %v", iface.Name, err)
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipNet.IP.To4(); ip4 != nil {
				addresses = append(addresses, ip4.String())
			}
		}
	}

	return addresses, nil
}

// Hostname returns the short host name, empty on failure
func (r *Resolver) Hostname() string {
	name, err := r.hostname()
	if err != nil {
		r.logger.Warnf("Failed to resolve hostname, error: %v", err)
		return ""
	}
	return name
}

// FQDN resolves the fully qualified name of the host by reverse lookup of
// its own addresses. Falls back to the short hostname when the resolver
// offers nothing better.
func (r *Resolver) FQDN() string {
	hostname := r.Hostname()
	if hostname == "" {
		return ""
	}

	addrs, err := r.lookupHost(hostname)
	if err != nil {
		r.logger.Debugf("Forward lookup failed, host: %s, error: %v", hostname, err)
		return hostname
	}

	for _, addr := range addrs {
		names, err := r.lookupAddr(addr)
		if err != nil {
			continue
		}
		for _, name := range names {
			name = strings.TrimSuffix(name, ".")
			if strings.Contains(name, ".") && !strings.EqualFold(name, "localhost") {
				return name
			}
		}
	}

	return hostname
}

// CertificateNames assembles the DNS names and IP addresses a certificate
// for the given bind address must cover. The bind address itself is always
// covered; a wildcard bind expands to every local address; localhost and
// 127.0.0.1 imply each other; the machine's hostname and FQDN are always
// included; custom names come last. The result is deduplicated preserving
// first-seen order.
func (r *Resolver) CertificateNames(host string, customNames []string) []string {
	var names []string

	if IsWildcard(host) {
		addresses, err := r.LocalAddresses()
		if err != nil || len(addresses) == 0 {
			if err != nil {
				r.logger.Warnf("Interface enumeration failed, certificate covers loopback only, error: %v", err)
			}
			addresses = []string{"127.0.0.1"}
		}
		names = append(names, addresses...)
		names = append(names, "localhost", "127.0.0.1")
	} else {
		names = append(names, host)
		switch host {
		case "localhost":
			names = append(names, "127.0.0.1")
		case "127.0.0.1":
			names = append(names, "localhost")
		}
	}

	if hostname := r.Hostname(); hostname != "" {
		names = append(names, hostname)
	}
	if fqdn := r.FQDN(); fqdn != "" {
		names = append(names, fqdn)
	}

	names = append(names, customNames...)

	return dedupe(names)
}

// SplitNames partitions certificate names into DNS names and IP addresses
func SplitNames(names []string) (dnsNames []string, ipAddresses []net.IP) {
	for _, name := range names {
		if ip := net.ParseIP(name); ip != nil {
			ipAddresses = append(ipAddresses, ip)
		} else {
			dnsNames = append(dnsNames, name)
		}
	}
	return dnsNames, ipAddresses
}

func isVirtualInterface(name string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range virtualInterfacePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	result := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		result = append(result, name)
	}
	return result
}
