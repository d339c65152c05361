package usecases

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	domainerrors "github.com/pylon-apis/pylon/internal/domain/errors"
)

// Private and special-purpose ranges a discovered endpoint must never point
// at. The check is textual: a hostname that IS one of these literals (or an
// IP inside these blocks) is rejected without any DNS resolution.
var blockedCIDRs = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"100.64.0.0/10",
	"fc00::/7",
	"fe80::/10",
	"::1/128",
}

var blockedNets = func() []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(blockedCIDRs))
	for _, cidr := range blockedCIDRs {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("bad blocked cidr %q: %v", cidr, err))
		}
		nets = append(nets, block)
	}
	return nets
}()

// CheckEndpoint rejects discovered endpoint URLs that would let a
// marketplace listing aim the gateway at itself or its network. Parse
// failure is also a rejection.
func CheckEndpoint(rawURL string) error {
	blocked := domainerrors.BadRequest(domainerrors.CodeBlockedEndpoint, "endpoint is not allowed")

	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return blocked
	}
	host := strings.ToLower(u.Hostname())

	if host == "localhost" || host == "metadata.google.internal" {
		return blocked
	}
	if ip := net.ParseIP(host); ip != nil {
		for _, block := range blockedNets {
			if block.Contains(ip) {
				return blocked
			}
		}
	}
	return nil
}
