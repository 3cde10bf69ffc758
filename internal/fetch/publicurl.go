package fetch

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

var (
	// ErrUnsafeScheme is returned for URLs other than http and https.
	ErrUnsafeScheme = errors.New("fetch: only http and https URLs are allowed")
	// ErrPrivateAddress is returned for URLs that point inside the host network.
	ErrPrivateAddress = errors.New("fetch: URL targets a private or loopback address")
)

// PublicURL is a Config.URLValidator for URLs taken from item payloads:
// it accepts http(s) URLs whose host does not resolve to a loopback,
// link-local or private address. A host that fails to resolve is let
// through; the request itself will fail.
func PublicURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("fetch: invalid URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("fetch: URL %q has no host", rawURL)
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		if private(addr) {
			return ErrPrivateAddress
		}
		return nil
	}
	addrs, err := net.LookupHost(host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if addr, err := netip.ParseAddr(a); err == nil && private(addr) {
			return ErrPrivateAddress
		}
	}
	return nil
}

func private(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast()
}
