package httppool

import "crypto/tls"

// insecureTLSConfig builds a *tls.Config with certificate verification
// disabled. Only reachable when Config.TLSInsecureSkip is explicitly set,
// e.g. for adapters pointed at a self-signed staging endpoint.
func insecureTLSConfig() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true}
}
