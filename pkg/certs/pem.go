package certs

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"

	"github.com/core-tools/hsu-launcher/pkg/errors"
)

const (
	pemBlockCertificate = "CERTIFICATE"
	pemBlockECKey       = "EC PRIVATE KEY"
	pemBlockPKCS8Key    = "PRIVATE KEY"
	pemBlockRSAKey      = "RSA PRIVATE KEY"
)

// EncodeCertificatePEM wraps a DER certificate in a PEM block
func EncodeCertificatePEM(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: pemBlockCertificate, Bytes: der})
}

// EncodePrivateKeyPEM serializes a private key as PKCS#8 PEM
func EncodePrivateKeyPEM(key crypto.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, errors.NewCertificateError("failed to serialize private key", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemBlockPKCS8Key, Bytes: der}), nil
}

// ParseCertificatePEM parses the first certificate block of PEM data
func ParseCertificatePEM(data []byte) (*x509.Certificate, error) {
	for block, rest := pem.Decode(data); block != nil; block, rest = pem.Decode(rest) {
		if block.Type != pemBlockCertificate {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, errors.NewCertificateError("failed to parse certificate", err)
		}
		return cert, nil
	}
	return nil, errors.NewCertificateError("no certificate block in PEM data", nil)
}

// ParseCertificatesPEM parses every certificate block of PEM data in order
func ParseCertificatesPEM(data []byte) ([]*x509.Certificate, error) {
	var certificates []*x509.Certificate
	for block, rest := pem.Decode(data); block != nil; block, rest = pem.Decode(rest) {
		if block.Type != pemBlockCertificate {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, errors.NewCertificateError("failed to parse certificate", err)
		}
		certificates = append(certificates, cert)
	}
	if len(certificates) == 0 {
		return nil, errors.NewCertificateError("no certificate block in PEM data", nil)
	}
	return certificates, nil
}

// ParsePrivateKeyPEM parses an EC, PKCS#8 or RSA private key block
func ParsePrivateKeyPEM(data []byte) (crypto.PrivateKey, error) {
	for block, rest := pem.Decode(data); block != nil; block, rest = pem.Decode(rest) {
		switch block.Type {
		case pemBlockECKey:
			key, err := x509.ParseECPrivateKey(block.Bytes)
			if err != nil {
				return nil, errors.NewCertificateError("failed to parse EC private key", err)
			}
			return key, nil
		case pemBlockPKCS8Key:
			key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, errors.NewCertificateError("failed to parse private key", err)
			}
			switch typed := key.(type) {
			case *ecdsa.PrivateKey:
				return typed, nil
			case *rsa.PrivateKey:
				return typed, nil
			default:
				return nil, errors.NewCertificateError("unsupported private key type", nil)
			}
		case pemBlockRSAKey:
			key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return nil, errors.NewCertificateError("failed to parse RSA private key", err)
			}
			return key, nil
		}
	}
	return nil, errors.NewCertificateError("no private key block in PEM data", nil)
}
