package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Hostnames that must never be a server-side request target, whatever
// they resolve to.
var blockedHosts = []string{
	"localhost",
	"metadata.google.internal",
	"metadata.google",
}

// ValidateEndpointURL checks that a URL is a safe target for server-side
// requests (the escrow gateway). It rejects non-HTTP schemes and hosts
// that are, or resolve to, loopback, private, link-local, or unspecified
// addresses, closing the SSRF hole a misconfigured gateway URL would open.
func ValidateEndpointURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format")
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("URL scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}

	host := u.Hostname()
	for _, b := range blockedHosts {
		if strings.EqualFold(host, b) {
			return fmt.Errorf("URL host %q is not allowed", host)
		}
	}

	// An IP literal is checked directly, no resolution involved.
	if ip := net.ParseIP(host); ip != nil {
		return checkAddr(ip)
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("cannot resolve URL host: %s", host)
	}
	for _, ip := range ips {
		if err := checkAddr(ip); err != nil {
			return fmt.Errorf("URL host %q resolves to blocked address: %w", host, err)
		}
	}
	return nil
}

func checkAddr(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("loopback addresses are not allowed")
	case ip.IsPrivate():
		return fmt.Errorf("private addresses are not allowed")
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return fmt.Errorf("link-local addresses are not allowed")
	case ip.IsUnspecified():
		return fmt.Errorf("unspecified addresses are not allowed")
	}
	return nil
}
