package transport

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"hash"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/pbkdf2"
)

// Cert-only PKCS#12 archives written by openssl pkcs12 -nokeys carry no
// Java trust attribute, which go-pkcs12 requires of trust stores. This file
// reads the certificate bags of such archives. Only unencrypted safes and
// PBES2 safes with PBKDF2 and AES-CBC are supported.

var (
	oidData          = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
	oidEncryptedData = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 6}
	oidPBES2         = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 5, 13}
	oidPBKDF2        = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 5, 12}
	oidHMACSHA1      = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 7}
	oidHMACSHA256    = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 9}
	oidHMACSHA512    = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 11}
	oidAES128CBC     = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 2}
	oidAES192CBC     = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 22}
	oidAES256CBC     = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 42}
	oidCertBag       = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 10, 1, 3}
	oidX509Cert      = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 22, 1}
)

type p12PFX struct {
	Version  int
	AuthSafe p12ContentInfo
	MacData  asn1.RawValue `asn1:"optional"`
}

type p12ContentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"tag:0,explicit,optional"`
}

type p12EncryptedData struct {
	Version int
	Info    p12EncryptedContentInfo
}

type p12EncryptedContentInfo struct {
	ContentType asn1.ObjectIdentifier
	Algorithm   pkix.AlgorithmIdentifier
	Content     []byte `asn1:"tag:0,optional"`
}

type p12PBES2Params struct {
	KDF    pkix.AlgorithmIdentifier
	Scheme pkix.AlgorithmIdentifier
}

type p12PBKDF2Params struct {
	Salt       []byte
	Iterations int
	KeyLength  int                      `asn1:"optional"`
	PRF        pkix.AlgorithmIdentifier `asn1:"optional"`
}

type p12SafeBag struct {
	ID         asn1.ObjectIdentifier
	Value      asn1.RawValue   `asn1:"tag:0,explicit"`
	Attributes []asn1.RawValue `asn1:"set,optional"`
}

type p12CertBag struct {
	ID   asn1.ObjectIdentifier
	Data []byte `asn1:"tag:0,explicit"`
}

func unmarshalDER(data []byte, out any) error {
	rest, err := asn1.Unmarshal(data, out)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return errors.New("trailing data after ASN.1 value")
	}
	return nil
}

// decodeCertBags returns every X.509 certificate of a PKCS#12 archive whose
// MAC has already been verified against password.
func decodeCertBags(data []byte, password string) ([]*x509.Certificate, error) {
	var pfx p12PFX
	if err := unmarshalDER(data, &pfx); err != nil {
		return nil, errors.Wrap(err, "pkcs12")
	}
	if !pfx.AuthSafe.ContentType.Equal(oidData) {
		return nil, errors.New("pkcs12: only password-protected archives are supported")
	}
	var authSafe []byte
	if err := unmarshalDER(pfx.AuthSafe.Content.Bytes, &authSafe); err != nil {
		return nil, errors.Wrap(err, "pkcs12: authenticated safe")
	}
	var safes []p12ContentInfo
	if err := unmarshalDER(authSafe, &safes); err != nil {
		return nil, errors.Wrap(err, "pkcs12: authenticated safe")
	}

	var certs []*x509.Certificate
	for _, ci := range safes {
		var contents []byte
		switch {
		case ci.ContentType.Equal(oidData):
			if err := unmarshalDER(ci.Content.Bytes, &contents); err != nil {
				return nil, errors.Wrap(err, "pkcs12: data safe")
			}
		case ci.ContentType.Equal(oidEncryptedData):
			var ed p12EncryptedData
			if err := unmarshalDER(ci.Content.Bytes, &ed); err != nil {
				return nil, errors.Wrap(err, "pkcs12: encrypted safe")
			}
			var err error
			if contents, err = pbes2Decrypt(ed.Info.Algorithm, ed.Info.Content, []byte(password)); err != nil {
				return nil, err
			}
		default:
			return nil, errors.Newf("pkcs12: unsupported safe content type %s", ci.ContentType)
		}

		var bags []p12SafeBag
		if err := unmarshalDER(contents, &bags); err != nil {
			return nil, errors.Wrap(err, "pkcs12: safe contents")
		}
		for _, bag := range bags {
			if !bag.ID.Equal(oidCertBag) {
				continue
			}
			var cb p12CertBag
			if err := unmarshalDER(bag.Value.Bytes, &cb); err != nil {
				return nil, errors.Wrap(err, "pkcs12: certificate bag")
			}
			if !cb.ID.Equal(oidX509Cert) {
				continue
			}
			cert, err := x509.ParseCertificate(cb.Data)
			if err != nil {
				return nil, errors.Wrap(err, "pkcs12: certificate bag")
			}
			certs = append(certs, cert)
		}
	}
	return certs, nil
}

func pbes2Decrypt(alg pkix.AlgorithmIdentifier, ciphertext, password []byte) ([]byte, error) {
	if !alg.Algorithm.Equal(oidPBES2) {
		return nil, errors.Newf("pkcs12: unsupported safe encryption %s", alg.Algorithm)
	}
	var params p12PBES2Params
	if err := unmarshalDER(alg.Parameters.FullBytes, &params); err != nil {
		return nil, errors.Wrap(err, "pkcs12: PBES2 parameters")
	}
	if !params.KDF.Algorithm.Equal(oidPBKDF2) {
		return nil, errors.Newf("pkcs12: unsupported key derivation %s", params.KDF.Algorithm)
	}
	var kdf p12PBKDF2Params
	if err := unmarshalDER(params.KDF.Parameters.FullBytes, &kdf); err != nil {
		return nil, errors.Wrap(err, "pkcs12: PBKDF2 parameters")
	}

	var prf func() hash.Hash
	switch {
	case len(kdf.PRF.Algorithm) == 0, kdf.PRF.Algorithm.Equal(oidHMACSHA1):
		prf = sha1.New
	case kdf.PRF.Algorithm.Equal(oidHMACSHA256):
		prf = sha256.New
	case kdf.PRF.Algorithm.Equal(oidHMACSHA512):
		prf = sha512.New
	default:
		return nil, errors.Newf("pkcs12: unsupported PBKDF2 PRF %s", kdf.PRF.Algorithm)
	}

	var keyLen int
	switch {
	case params.Scheme.Algorithm.Equal(oidAES128CBC):
		keyLen = 16
	case params.Scheme.Algorithm.Equal(oidAES192CBC):
		keyLen = 24
	case params.Scheme.Algorithm.Equal(oidAES256CBC):
		keyLen = 32
	default:
		return nil, errors.Newf("pkcs12: unsupported cipher %s", params.Scheme.Algorithm)
	}
	var iv []byte
	if err := unmarshalDER(params.Scheme.Parameters.FullBytes, &iv); err != nil {
		return nil, errors.Wrap(err, "pkcs12: cipher IV")
	}

	block, err := aes.NewCipher(pbkdf2.Key(password, kdf.Salt, kdf.Iterations, keyLen, prf))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(iv) != block.BlockSize() || len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, errors.New("pkcs12: malformed encrypted safe")
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

	pad := int(plain[len(plain)-1])
	if pad == 0 || pad > block.BlockSize() || !bytes.Equal(plain[len(plain)-pad:], bytes.Repeat([]byte{byte(pad)}, pad)) {
		return nil, errors.New("pkcs12: bad padding in encrypted safe")
	}
	return plain[:len(plain)-pad], nil
}
