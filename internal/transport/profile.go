package transport

import (
	"crypto/tls"
	"crypto/x509"
)

// SecurityMode is how connections to the cluster are secured.
type SecurityMode int

const (
	// ModeNone sends plaintext HTTP.
	ModeNone SecurityMode = iota
	// ModeEncryptedNoVerify uses TLS and verifies the chain but not the host name.
	ModeEncryptedNoVerify
	// ModeEncryptedVerify uses TLS with full chain and host name verification.
	ModeEncryptedVerify
)

func (m SecurityMode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeEncryptedNoVerify:
		return "encrypted-no-verify"
	case ModeEncryptedVerify:
		return "encrypted-verify"
	default:
		return "unknown"
	}
}

// Profile is the resolved, read-only connection configuration shared by all
// connections.
type Profile struct {
	// Endpoints are base URLs without a trailing slash.
	Endpoints []string

	Mode SecurityMode

	// RootCAs is the trust material. Nil means the system roots.
	RootCAs *x509.CertPool

	// Certificates is the client identity, empty when no keystore is set.
	Certificates []tls.Certificate

	Username string
	Password string

	// Warnings lists options that were set but have no effect.
	Warnings []string
}

// Secure reports whether connections use TLS.
func (p *Profile) Secure() bool {
	return p.Mode != ModeNone
}

// HasCredentials reports whether requests carry basic auth.
func (p *Profile) HasCredentials() bool {
	return p.Username != ""
}

// TLSConfig returns a fresh TLS configuration for the profile, or nil in
// ModeNone.
func (p *Profile) TLSConfig() *tls.Config {
	switch p.Mode {
	case ModeEncryptedVerify:
		return &tls.Config{
			MinVersion:   tls.VersionTLS12,
			RootCAs:      p.RootCAs,
			Certificates: p.Certificates,
		}
	case ModeEncryptedNoVerify:
		roots := p.RootCAs
		return &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: p.Certificates,
			// The standard check is replaced by VerifyConnection, which keeps
			// chain validation and drops only the host name match.
			InsecureSkipVerify: true,
			VerifyConnection: func(cs tls.ConnectionState) error {
				return verifyChain(cs.PeerCertificates, roots)
			},
		}
	default:
		return nil
	}
}

func verifyChain(certs []*x509.Certificate, roots *x509.CertPool) error {
	if len(certs) == 0 {
		return x509.CertificateInvalidError{Reason: x509.NotAuthorizedToSign, Detail: "no peer certificates"}
	}
	intermediates := x509.NewCertPool()
	for _, c := range certs[1:] {
		intermediates.AddCert(c)
	}
	_, err := certs[0].Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	return err
}
