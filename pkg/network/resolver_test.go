package network

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NetworkMockLogger is a simple mock implementation of Logger for testing
type NetworkMockLogger struct{}

func (m *NetworkMockLogger) Debugf(format string, args ...interface{})               {}
func (m *NetworkMockLogger) Infof(format string, args ...interface{})                {}
func (m *NetworkMockLogger) Warnf(format string, args ...interface{})                {}
func (m *NetworkMockLogger) Errorf(format string, args ...interface{})               {}

func newTestResolver() *Resolver {
	resolver := NewResolver(&NetworkMockLogger{})
	resolver.interfaces = func() ([]net.Interface, error) {
		return nil, nil
	}
	resolver.hostname = func() (string, error) {
		return "box", nil
	}
	resolver.lookupHost = func(host string) ([]string, error) {
		return []string{"192.0.2.10"}, nil
	}
	resolver.lookupAddr = func(addr string) ([]string, error) {
		return []string{"box.example.org."}, nil
	}
	return resolver
}

func TestIsWildcard(t *testing.T) {
	assert.True(t, IsWildcard("0.0.0.0"))
	assert.True(t, IsWildcard("::"))
	assert.False(t, IsWildcard("127.0.0.1"))
	assert.False(t, IsWildcard("192.0.2.10"))
}

func TestIsVirtualInterface(t *testing.T) {
	assert.True(t, isVirtualInterface("docker0"))
	assert.True(t, isVirtualInterface("veth1a2b3c"))
	assert.True(t, isVirtualInterface("br-4ae8f1"))
	assert.True(t, isVirtualInterface("virbr0"))
	assert.False(t, isVirtualInterface("eth0"))
	assert.False(t, isVirtualInterface("enp3s0"))
	assert.False(t, isVirtualInterface("wlan0"))
}

func TestFQDNPrefersDottedReverseName(t *testing.T) {
	resolver := newTestResolver()
	assert.Equal(t, "box.example.org", resolver.FQDN())
}

func TestFQDNFallsBackToHostname(t *testing.T) {
	resolver := newTestResolver()
	resolver.lookupAddr = func(addr string) ([]string, error) {
		return []string{"localhost."}, nil
	}
	assert.Equal(t, "box", resolver.FQDN())
}

func TestCertificateNamesExplicitHost(t *testing.T) {
	resolver := newTestResolver()

	names := resolver.CertificateNames("192.0.2.10", nil)
	assert.Equal(t, []string{"192.0.2.10", "box", "box.example.org"}, names)
}

func TestCertificateNamesLoopbackPairing(t *testing.T) {
	resolver := newTestResolver()

	names := resolver.CertificateNames("localhost", nil)
	assert.Contains(t, names, "localhost")
	assert.Contains(t, names, "127.0.0.1")

	names = resolver.CertificateNames("127.0.0.1", nil)
	assert.Contains(t, names, "localhost")
	assert.Contains(t, names, "127.0.0.1")
}

func TestCertificateNamesWildcardExpansion(t *testing.T) {
	resolver := newTestResolver()
	resolver.interfaces = func() ([]net.Interface, error) {
		// Address enumeration is exercised through LocalAddresses directly;
		// an empty interface list degrades to loopback
		return []net.Interface{}, nil
	}

	names := resolver.CertificateNames("0.0.0.0", []string{"box.internal"})
	assert.Equal(t, []string{"127.0.0.1", "localhost", "box", "box.example.org", "box.internal"}, names)
}

func TestCertificateNamesDegradeOnEnumerationFailure(t *testing.T) {
	resolver := newTestResolver()
	resolver.interfaces = func() ([]net.Interface, error) {
		return nil, assert.AnError
	}

	names := resolver.CertificateNames("0.0.0.0", nil)
	assert.Contains(t, names, "127.0.0.1")
	assert.Contains(t, names, "localhost")
}

func TestCertificateNamesDeduplicates(t *testing.T) {
	resolver := newTestResolver()

	names := resolver.CertificateNames("localhost", []string{"localhost", "box"})
	counts := map[string]int{}
	for _, name := range names {
		counts[name]++
	}
	for name, count := range counts {
		assert.Equal(t, 1, count, "name %s appears %d times", name, count)
	}
}

func TestSplitNames(t *testing.T) {
	dnsNames, ips := SplitNames([]string{"localhost", "127.0.0.1", "box.example.org", "192.0.2.10"})

	assert.Equal(t, []string{"localhost", "box.example.org"}, dnsNames)
	require.Len(t, ips, 2)
	assert.Equal(t, "127.0.0.1", ips[0].String())
	assert.Equal(t, "192.0.2.10", ips[1].String())
}

func TestLocalAddressesSkipsVirtualAndDown(t *testing.T) {
	resolver := NewResolver(&NetworkMockLogger{})

	// Real interfaces vary per machine; the call must not fail and must only
	// ever return parseable IPv4 addresses
	addresses, err := resolver.LocalAddresses()
	require.NoError(t, err)
	for _, addr := range addresses {
		ip := net.ParseIP(addr)
		require.NotNil(t, ip)
		assert.NotNil(t, ip.To4())
	}
}
