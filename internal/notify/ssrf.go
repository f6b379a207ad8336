package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrPrivateTarget is returned when a webhook URL resolves to a private,
// loopback or link-local address.
var ErrPrivateTarget = errors.New("webhook target is on a private network")

// resolver is the subset of *net.Resolver used to vet webhook hosts.
type resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsPrivate() ||
		ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}

// checkPublicURL rejects non-HTTP schemes and hosts that resolve to any
// private address.
func checkPublicURL(ctx context.Context, r resolver, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPrivateTarget, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: scheme %q is not allowed", ErrPrivateTarget, u.Scheme)
	}

	host := u.Hostname()
	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return fmt.Errorf("%w: %s", ErrPrivateTarget, host)
		}
		return nil
	}

	addrs, err := r.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve webhook host %s: %w", host, err)
	}
	for _, addr := range addrs {
		if isPrivateIP(addr.IP) {
			return fmt.Errorf("%w: %s resolves to %s", ErrPrivateTarget, host, addr.IP)
		}
	}
	return nil
}
