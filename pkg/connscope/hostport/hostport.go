// Package hostport normalizes the host and port fields a controller
// reports in connection metadata, so that filtering and display
// compare a single canonical form (lower-case Punycode for DNS names,
// canonical text for IP addresses).
package hostport

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

const portMin, portMax = 0, 65535

// NoPort marks an absent or invalid port.
const NoPort = -1

type HostPort struct {
	Host string
	Port int
}

func (hp HostPort) IsIP() bool {
	return net.ParseIP(hp.Host) != nil
}

func (hp HostPort) String() string {
	if hp.Host != "" && hp.Port != NoPort {
		return net.JoinHostPort(hp.Host, strconv.Itoa(hp.Port))
	}
	return hp.Host
}

// New builds a normalized HostPort from the separate host and port
// strings found in connection metadata. An empty port string is
// accepted and yields NoPort.
func New(host, port string) (HostPort, error) {
	hp := HostPort{Port: NoPort}

	var err error
	hp.Host, err = NormalizeHost(host)
	if err != nil {
		return hp, err
	}
	if port != "" {
		hp.Port, err = NormalizePort(port)
	}
	return hp, err
}

// NormalizeHost returns the canonical representation of host: Punycode
// lower-case for DNS names, standardized text for IP addresses.
func NormalizeHost(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	if ip := net.ParseIP(s); ip != nil {
		// IP addresses might have different but equivalent
		// representations (`2001:DB8::` and `2001:db8::` are the same
		// address); use one consistent form.
		return ip.String(), nil
	}

	// Controllers routinely report hostnames containing underscores,
	// which the idna Lookup profile rejects, so build a profile without
	// the strict domain name check and apply a more lenient one below.
	idnaProfile := idna.New(
		idna.MapForLookup(),
		idna.BidiRule(),
		idna.StrictDomainName(false),
	)
	domain, err := idnaProfile.ToASCII(s)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", s, err)
	}

	domain = strings.ToLower(domain)

	const validDNSCharacters = "abcdefghijklmnopqrstuvwxyz0123456789.-_"
	if invalid := strings.Trim(domain, validDNSCharacters); len(invalid) > 0 {
		return domain, fmt.Errorf("invalid host %q: disallowed rune %U", s, invalid[0])
	}
	return domain, nil
}

// NormalizePort converts s to an int if it represents a valid TCP port.
func NormalizePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return NoPort, fmt.Errorf("invalid port number %q: %w", s, err)
	}
	if port < portMin || port > portMax {
		return NoPort, fmt.Errorf("invalid port number %d: must be between %d and %d", port, portMin, portMax)
	}
	return port, nil
}
