// Package tls builds the server TLS configuration and keeps its
// certificate current when the files on disk are replaced.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	"mercator-hq/passthrough/pkg/config"
)

// ServerConfig returns a *tls.Config serving the certificate held by r.
func ServerConfig(cfg config.TLSConfig, r *Reloader) (*tls.Config, error) {
	minVersion, err := ParseVersion(cfg.MinVersion)
	if err != nil {
		return nil, err
	}
	// #nosec G402 - MinVersion is restricted to 1.2 or 1.3 by ParseVersion
	return &tls.Config{
		MinVersion:     minVersion,
		GetCertificate: r.GetCertificate,
	}, nil
}

// ParseVersion maps "1.2" and "1.3" to tls constants. Older versions are
// refused.
func ParseVersion(v string) (uint16, error) {
	switch v {
	case "", "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported TLS min_version %q", v)
	}
}

// checkValidity rejects certificates outside their validity window.
func checkValidity(cert *tls.Certificate, now time.Time) (*x509.Certificate, error) {
	if cert == nil || len(cert.Certificate) == 0 {
		return nil, fmt.Errorf("certificate chain is empty")
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	if now.Before(leaf.NotBefore) {
		return nil, fmt.Errorf("certificate not valid before %s", leaf.NotBefore.Format(time.RFC3339))
	}
	if now.After(leaf.NotAfter) {
		return nil, fmt.Errorf("certificate expired on %s", leaf.NotAfter.Format(time.RFC3339))
	}
	return leaf, nil
}
