package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/core-tools/hsu-launcher/pkg/errors"
	"github.com/core-tools/hsu-launcher/pkg/logging"
	"github.com/core-tools/hsu-launcher/pkg/state"
)

const (
	caCertificateName = "ca.crt"
	caKeyName         = "ca.key"

	caCommonName = "launcher-CA"
	caValidity   = 10 * 365 * 24 * time.Hour
)

// Authority is the private certificate authority of a state root. The CA
// pair is created once and reused for every subsequently issued leaf, so
// clients that trusted it once keep trusting new configs.
type Authority struct {
	certificate *x509.Certificate
	key         *ecdsa.PrivateKey
	certPEM     []byte
}

// CertificatePath returns the location of the CA certificate under the
// given ssl directory
func CertificatePath(sslDir string) string {
	return filepath.Join(sslDir, caCertificateName)
}

func keyPath(sslDir string) string {
	return filepath.Join(sslDir, caKeyName)
}

// LoadOrCreateAuthority returns the CA of the state root, generating and
// persisting a fresh one on first use
func LoadOrCreateAuthority(sslDir string, logger logging.Logger) (*Authority, error) {
	authority, err := loadAuthority(sslDir)
	if err == nil {
		logger.Debugf("Reusing certificate authority, path: %s", CertificatePath(sslDir))
		return authority, nil
	}
	if !os.IsNotExist(asPathError(err)) {
		return nil, err
	}

	logger.Infof("Generating certificate authority, path: %s", CertificatePath(sslDir))
	return createAuthority(sslDir)
}

func loadAuthority(sslDir string) (*Authority, error) {
	certPEM, err := os.ReadFile(CertificatePath(sslDir))
	if err != nil {
		return nil, errors.NewIOError("failed to read CA certificate", err).WithContext("path", CertificatePath(sslDir))
	}
	keyPEM, err := os.ReadFile(keyPath(sslDir))
	if err != nil {
		return nil, errors.NewIOError("failed to read CA key", err).WithContext("path", keyPath(sslDir))
	}

	certificate, err := ParseCertificatePEM(certPEM)
	if err != nil {
		return nil, err
	}
	key, err := ParsePrivateKeyPEM(keyPEM)
	if err != nil {
		return nil, err
	}
	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.NewCertificateError("CA key is not an EC key", nil).WithContext("path", keyPath(sslDir))
	}

	return &Authority{certificate: certificate, key: ecKey, certPEM: certPEM}, nil
}

func createAuthority(sslDir string) (*Authority, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errors.NewCertificateError("failed to generate CA key", err)
	}

	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: caCommonName},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(caValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            0,
		MaxPathLenZero:        true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, errors.NewCertificateError("failed to create CA certificate", err)
	}
	certificate, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, errors.NewCertificateError("failed to parse created CA certificate", err)
	}

	certPEM := EncodeCertificatePEM(der)
	keyPEM, err := EncodePrivateKeyPEM(key)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(sslDir, 0700); err != nil {
		return nil, errors.NewIOError("failed to create ssl directory", err).WithContext("path", sslDir)
	}
	if err := state.WriteFileAtomic(keyPath(sslDir), keyPEM, 0600); err != nil {
		return nil, err
	}
	if err := state.WriteFileAtomic(CertificatePath(sslDir), certPEM, 0644); err != nil {
		return nil, err
	}

	return &Authority{certificate: certificate, key: key, certPEM: certPEM}, nil
}

// Certificate returns the CA certificate
func (a *Authority) Certificate() *x509.Certificate {
	return a.certificate
}

// CertificatePEM returns the CA certificate in PEM form
func (a *Authority) CertificatePEM() []byte {
	return a.certPEM
}

func randomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, errors.NewCertificateError("failed to generate certificate serial", err)
	}
	return serial, nil
}

// asPathError digs the os-level cause out of a wrapped IO error so the
// not-exists case can be told apart from real failures
func asPathError(err error) error {
	if domainErr, ok := err.(*errors.DomainError); ok && domainErr.Cause != nil {
		return domainErr.Cause
	}
	return err
}
