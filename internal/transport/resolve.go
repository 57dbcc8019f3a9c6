package transport

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"

	"github.com/bft-labs/docship/internal/domain"
)

// Resolve validates opts and builds a Profile, reading any TLS material.
// Every failure is a *domain.ConfigurationError naming the offending option.
func Resolve(opts Options) (*Profile, error) {
	p := &Profile{}

	protocol := strings.ToUpper(strings.TrimSpace(opts.SecurityProtocol))
	if protocol == "" {
		protocol = ProtocolPlaintext
	}
	if protocol != ProtocolPlaintext && protocol != ProtocolSSL {
		return nil, configErr(OptSecurityProtocol, "must be PLAINTEXT or SSL, got %q", opts.SecurityProtocol)
	}

	endpoints, err := resolveEndpoints(opts.URLs, protocol)
	if err != nil {
		return nil, err
	}
	p.Endpoints = endpoints

	if err := resolveCredentials(opts, p); err != nil {
		return nil, err
	}

	if protocol == ProtocolPlaintext {
		p.Mode = ModeNone
		if opts.hasTLSMaterial() {
			p.Warnings = append(p.Warnings, "TLS keystore/truststore options are ignored with security protocol PLAINTEXT")
		}
		return p, nil
	}

	if err := resolveTLS(opts, p); err != nil {
		return nil, err
	}
	return p, nil
}

func resolveEndpoints(raw []string, protocol string) ([]string, error) {
	var out []string
	for _, entry := range raw {
		// a single option value may carry a comma separated list
		for _, s := range strings.Split(entry, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			u, err := url.Parse(s)
			if err != nil {
				return nil, configErr(OptURLs, "invalid URL %q: %v", s, err)
			}
			scheme := strings.ToLower(u.Scheme)
			if scheme != "http" && scheme != "https" {
				return nil, configErr(OptURLs, "URL %q must use http or https", s)
			}
			if u.Host == "" {
				return nil, configErr(OptURLs, "URL %q has no host", s)
			}
			if protocol == ProtocolSSL && scheme != "https" {
				return nil, configErr(OptURLs, "URL %q must use https with security protocol SSL", s)
			}
			if protocol == ProtocolPlaintext && scheme != "http" {
				return nil, configErr(OptURLs, "URL %q must use http with security protocol PLAINTEXT", s)
			}
			out = append(out, strings.TrimRight(scheme+"://"+u.Host+u.Path, "/"))
		}
	}
	if len(out) == 0 {
		return nil, configErr(OptURLs, "at least one URL is required")
	}
	return out, nil
}

func resolveCredentials(opts Options, p *Profile) error {
	switch {
	case opts.Username != "" && opts.Password == "":
		return configErr(OptPassword, "required when %s is set", OptUsername)
	case opts.Username == "" && opts.Password != "":
		return configErr(OptUsername, "required when %s is set", OptPassword)
	}
	p.Username = opts.Username
	p.Password = opts.Password
	return nil
}

func resolveTLS(opts Options, p *Profile) error {
	algo := strings.ToLower(strings.TrimSpace(opts.algorithm()))
	if algo != "" && algo != DefaultEndpointIdentificationAlgorithm {
		return configErr(OptEndpointIdentAlgo, "must be %q or empty, got %q", DefaultEndpointIdentificationAlgorithm, opts.algorithm())
	}
	verifyHost := algo != ""

	if opts.TruststoreLocation == "" && opts.TruststorePassword != "" {
		return configErr(OptTruststoreLocation, "required when %s is set", OptTruststorePassword)
	}
	if opts.KeystoreLocation == "" && (opts.KeystorePassword != "" || opts.KeyPassword != "") {
		return configErr(OptKeystoreLocation, "required when a keystore or key password is set")
	}
	if opts.TruststoreLocation == "" && verifyHost {
		return configErr(OptTruststoreLocation, "required unless hostname verification is disabled with an empty %s", OptEndpointIdentAlgo)
	}

	if opts.TruststoreLocation != "" {
		pool, err := loadTrustStore(opts.TruststoreLocation, opts.TruststorePassword)
		if err != nil {
			return configErr(OptTruststoreLocation, "%v", err)
		}
		p.RootCAs = pool
	}

	if opts.KeystoreLocation != "" {
		cert, err := loadKeyStore(opts.KeystoreLocation, opts.KeystorePassword, opts.KeyPassword)
		if err != nil {
			return configErr(OptKeystoreLocation, "%v", err)
		}
		p.Certificates = []tls.Certificate{cert}
	}

	if verifyHost {
		p.Mode = ModeEncryptedVerify
	} else {
		p.Mode = ModeEncryptedNoVerify
	}
	return nil
}

func configErr(option, format string, args ...interface{}) error {
	return &domain.ConfigurationError{Option: option, Reason: fmt.Sprintf(format, args...)}
}
