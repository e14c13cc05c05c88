package security

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

var ErrDisallowedURL = errors.New("outbound URL not allowed")

// URLPolicy decides which provider endpoints and image URLs may be fetched.
// Local-serving providers run with AllowHTTP and AllowLocalNetworks, hosted
// providers and image downloads with neither.
type URLPolicy struct {
	AllowHTTP          bool
	AllowLocalNetworks bool
}

var (
	HostedPolicy = URLPolicy{}
	LocalPolicy  = URLPolicy{AllowHTTP: true, AllowLocalNetworks: true}
)

func (p URLPolicy) Validate(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrapf(ErrDisallowedURL, "invalid URL: %v", err)
	}

	switch parsed.Scheme {
	case "https":
	case "http":
		if !p.AllowHTTP {
			return errors.Wrapf(ErrDisallowedURL, "http scheme is not allowed for %s", parsed.Host)
		}
	default:
		return errors.Wrapf(ErrDisallowedURL, "unsupported URL scheme %q", parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return errors.Wrap(ErrDisallowedURL, "URL host is required")
	}
	if p.AllowLocalNetworks {
		return p.validateIP(host)
	}

	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return errors.Wrapf(ErrDisallowedURL, "local hostname %q", host)
	}
	return p.validateIP(host)
}

// validateIP only looks at IP literals, hostnames are never resolved.
func (p URLPolicy) validateIP(host string) error {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil
	}
	if addr.Zone() != "" && !p.AllowLocalNetworks {
		return errors.Wrapf(ErrDisallowedURL, "zoned IP address %q", host)
	}
	addr = addr.Unmap()

	if addr.IsUnspecified() || addr.IsMulticast() {
		return errors.Wrapf(ErrDisallowedURL, "IP address %q", host)
	}
	if !p.AllowLocalNetworks &&
		(addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast()) {
		return errors.Wrapf(ErrDisallowedURL, "local network IP %q", host)
	}
	return nil
}
