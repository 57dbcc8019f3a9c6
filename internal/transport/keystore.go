package transport

import (
	"bytes"
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	keystore "github.com/pavlo-v-chernykh/keystore-go/v4"
	"github.com/youmark/pkcs8"
	"software.sslmate.com/src/go-pkcs12"
)

var (
	pemPrefix = []byte("-----BEGIN")
	jksMagic  = []byte{0xfe, 0xed, 0xfe, 0xed}
)

// store is the decoded content of a keystore or truststore file.
type store struct {
	key   crypto.PrivateKey
	chain []*x509.Certificate
	certs []*x509.Certificate
}

// readStore decodes a PEM bundle, a Java keystore or a PKCS#12 archive.
// When trustOnly is set, private keys are skipped and PKCS#12 files are
// decoded as trust stores.
func readStore(path, password, keyPassword string, trustOnly bool) (*store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	if keyPassword == "" {
		keyPassword = password
	}

	switch {
	case bytes.Contains(data, pemPrefix):
		return readPEM(path, data, keyPassword, trustOnly)
	case bytes.HasPrefix(data, jksMagic):
		return readJKS(path, data, password, keyPassword, trustOnly)
	case trustOnly:
		certs, err := decodeTrustStore(data, password)
		if err != nil {
			return nil, errors.Wrapf(err, "decode PKCS#12 %s", path)
		}
		return &store{certs: certs}, nil
	default:
		key, leaf, cas, err := pkcs12.DecodeChain(data, password)
		if err != nil {
			return nil, errors.Wrapf(err, "decode PKCS#12 %s", path)
		}
		chain := append([]*x509.Certificate{leaf}, cas...)
		return &store{key: key, chain: chain, certs: chain}, nil
	}
}

// decodeTrustStore accepts Java-style trust stores, keystores whose chain is
// trusted, and cert-only archives written by openssl pkcs12 -nokeys.
func decodeTrustStore(data []byte, password string) ([]*x509.Certificate, error) {
	certs, err := pkcs12.DecodeTrustStore(data, password)
	if err == nil {
		return certs, nil
	}
	if strings.Contains(err.Error(), "not marked as trusted") {
		// The MAC has already been verified at this point.
		return decodeCertBags(data, password)
	}
	if _, leaf, cas, chainErr := pkcs12.DecodeChain(data, password); chainErr == nil {
		return append([]*x509.Certificate{leaf}, cas...), nil
	}
	return nil, err
}

func readPEM(path string, data []byte, keyPassword string, trustOnly bool) (*store, error) {
	s := &store{}
	rest := data
	found := false
	for {
		var b *pem.Block
		b, rest = pem.Decode(rest)
		if b == nil {
			break
		}
		found = true
		switch {
		case b.Type == "CERTIFICATE":
			cert, err := x509.ParseCertificate(b.Bytes)
			if err != nil {
				return nil, errors.Wrapf(err, "parse certificate in %s", path)
			}
			s.certs = append(s.certs, cert)
		case isPrivateKey(b.Type) && !trustOnly:
			if s.key != nil {
				return nil, errors.Newf("%s: more than one private key", path)
			}
			key, err := parseKeyBlock(b, keyPassword)
			if err != nil {
				return nil, errors.Wrapf(err, "decrypt key in %s", path)
			}
			s.key = key
		}
	}
	if !found {
		return nil, errors.Newf("%s: no PEM blocks found", path)
	}
	s.chain = s.certs
	return s, nil
}

// readJKS decodes a Java keystore. Trust stores read only the trusted
// certificate entries.
func readJKS(path string, data []byte, password, keyPassword string, trustOnly bool) (*store, error) {
	ks := keystore.New()
	if err := ks.Load(bytes.NewReader(data), []byte(password)); err != nil {
		return nil, errors.Wrapf(err, "decode JKS %s", path)
	}

	s := &store{}
	for _, alias := range ks.Aliases() {
		switch {
		case ks.IsPrivateKeyEntry(alias) && !trustOnly:
			if s.key != nil {
				return nil, errors.Newf("%s: more than one private key", path)
			}
			entry, err := ks.GetPrivateKeyEntry(alias, []byte(keyPassword))
			if err != nil {
				return nil, errors.Wrapf(err, "read key %q in %s", alias, path)
			}
			key, err := x509.ParsePKCS8PrivateKey(entry.PrivateKey)
			if err != nil {
				return nil, errors.Wrapf(err, "parse key %q in %s", alias, path)
			}
			s.key = key
			for _, c := range entry.CertificateChain {
				cert, err := x509.ParseCertificate(c.Content)
				if err != nil {
					return nil, errors.Wrapf(err, "parse chain of %q in %s", alias, path)
				}
				s.chain = append(s.chain, cert)
			}
			s.certs = append(s.certs, s.chain...)
		case ks.IsTrustedCertificateEntry(alias):
			entry, err := ks.GetTrustedCertificateEntry(alias)
			if err != nil {
				return nil, errors.Wrapf(err, "read certificate %q in %s", alias, path)
			}
			cert, err := x509.ParseCertificate(entry.Certificate.Content)
			if err != nil {
				return nil, errors.Wrapf(err, "parse certificate %q in %s", alias, path)
			}
			s.certs = append(s.certs, cert)
		}
	}
	return s, nil
}

// loadTrustStore builds a certificate pool from every certificate in the store.
func loadTrustStore(path, password string) (*x509.CertPool, error) {
	s, err := readStore(path, password, "", true)
	if err != nil {
		return nil, err
	}
	if len(s.certs) == 0 {
		return nil, errors.Newf("%s: no certificates found", path)
	}

	pool := x509.NewCertPool()
	for _, cert := range s.certs {
		pool.AddCert(cert)
	}
	return pool, nil
}

// loadKeyStore builds the client identity from a store holding one private
// key and its certificate chain.
func loadKeyStore(path, password, keyPassword string) (tls.Certificate, error) {
	s, err := readStore(path, password, keyPassword, false)
	if err != nil {
		return tls.Certificate{}, err
	}
	if s.key == nil {
		return tls.Certificate{}, errors.Newf("%s: no private key found", path)
	}
	if len(s.chain) == 0 {
		return tls.Certificate{}, errors.Newf("%s: no certificate found", path)
	}

	leaf, err := matchLeaf(s.key, s.chain)
	if err != nil {
		return tls.Certificate{}, errors.Wrapf(err, "load key pair from %s", path)
	}
	cert := tls.Certificate{PrivateKey: s.key, Leaf: leaf}
	cert.Certificate = append(cert.Certificate, leaf.Raw)
	for _, c := range s.chain {
		if c != leaf {
			cert.Certificate = append(cert.Certificate, c.Raw)
		}
	}
	return cert, nil
}

// matchLeaf returns the certificate of the chain whose public key pairs
// with key.
func matchLeaf(key crypto.PrivateKey, chain []*x509.Certificate) (*x509.Certificate, error) {
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, errors.Newf("unsupported private key type %T", key)
	}
	type equaler interface{ Equal(crypto.PublicKey) bool }
	pub, ok := signer.Public().(equaler)
	if !ok {
		return nil, errors.Newf("unsupported public key type %T", signer.Public())
	}
	for _, c := range chain {
		if pub.Equal(c.PublicKey) {
			return c, nil
		}
	}
	return nil, errors.New("private key does not match any certificate")
}

func isPrivateKey(typ string) bool {
	switch typ {
	case "PRIVATE KEY", "RSA PRIVATE KEY", "EC PRIVATE KEY", "ENCRYPTED PRIVATE KEY":
		return true
	}
	return false
}

// parseKeyBlock decodes PKCS#1, SEC 1 and PKCS#8 keys, decrypting encrypted
// PKCS#8 and legacy RFC 1423 blocks with password.
func parseKeyBlock(b *pem.Block, password string) (crypto.PrivateKey, error) {
	der := b.Bytes
	switch {
	case b.Type == "ENCRYPTED PRIVATE KEY":
		if password == "" {
			return nil, errors.New("key is encrypted but no password was given")
		}
		key, err := pkcs8.ParsePKCS8PrivateKey(der, []byte(password))
		if err != nil {
			return nil, err
		}
		return key, nil
	//nolint:staticcheck // RFC 1423 keys written by openssl -des3
	case x509.IsEncryptedPEMBlock(b):
		if password == "" {
			return nil, errors.New("key is encrypted but no password was given")
		}
		var err error
		//nolint:staticcheck
		der, err = x509.DecryptPEMBlock(b, []byte(password))
		if err != nil {
			return nil, err
		}
	}

	switch b.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(der)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(der)
	default:
		return x509.ParsePKCS8PrivateKey(der)
	}
}
