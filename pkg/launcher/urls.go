package launcher

import (
	"fmt"
	"net/url"

	"github.com/core-tools/hsu-launcher/pkg/config"
	"github.com/core-tools/hsu-launcher/pkg/network"
)

// AccessURLs builds the client-facing URLs of a run config. A wildcard bind
// yields one URL per reachable local address; the access token travels as a
// query parameter.
func AccessURLs(rc *config.RunConfig, resolver *network.Resolver) []string {
	scheme := "http"
	if rc.IsSecure() {
		scheme = "https"
	}

	var hosts []string
	if network.IsWildcard(rc.Host) {
		addresses, err := resolver.LocalAddresses()
		if err != nil || len(addresses) == 0 {
			addresses = []string{"127.0.0.1"}
		}
		hosts = addresses
	} else {
		hosts = []string{rc.Host}
	}

	query := ""
	if rc.Token != "" {
		query = "?token=" + url.QueryEscape(rc.Token)
	}

	urls := make([]string, 0, len(hosts))
	for _, host := range hosts {
		urls = append(urls, fmt.Sprintf("%s://%s:%d/%s", scheme, host, rc.Port, query))
	}
	return urls
}
