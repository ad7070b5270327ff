package certs

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/core-tools/hsu-launcher/pkg/errors"
	"github.com/core-tools/hsu-launcher/pkg/logging"
	"github.com/core-tools/hsu-launcher/pkg/network"
	"github.com/core-tools/hsu-launcher/pkg/state"
)

const (
	LeafCertificateName = "server.crt"
	LeafKeyName         = "server.key"
	ChainName           = "chain.pem"

	leafValidity = 365 * 24 * time.Hour
)

// Material locates the TLS files of a run config's certificate slot
type Material struct {
	CertificateFile string
	KeyFile         string
	ChainFile       string
}

func materialPaths(certDir string) *Material {
	return &Material{
		CertificateFile: filepath.Join(certDir, LeafCertificateName),
		KeyFile:         filepath.Join(certDir, LeafKeyName),
		ChainFile:       filepath.Join(certDir, ChainName),
	}
}

// Issuer creates leaf certificates signed by the state root's authority
type Issuer struct {
	authority *Authority
	logger    logging.Logger
}

func NewIssuer(authority *Authority, logger logging.Logger) *Issuer {
	return &Issuer{
		authority: authority,
		logger:    logger,
	}
}

// Issue generates a fresh leaf covering the given names and persists it
// into the certificate slot, replacing any previous material. The leaf
// validity stays within the one year accepted by current clients.
func (i *Issuer) Issue(certDir string, names []string) (*Material, error) {
	if len(names) == 0 {
		return nil, errors.NewValidationError("certificate needs at least one name", nil)
	}

	i.logger.Infof("Issuing certificate, dir: %s, names: %s", certDir, strings.Join(names, ", "))

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errors.NewCertificateError("failed to generate certificate key", err)
	}

	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	dnsNames, ipAddresses := network.SplitNames(names)

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: names[0]},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(leafValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     dnsNames,
		IPAddresses:  ipAddresses,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, i.authority.Certificate(), &key.PublicKey, i.authority.key)
	if err != nil {
		return nil, errors.NewCertificateError("failed to create certificate", err)
	}

	certPEM := EncodeCertificatePEM(der)
	keyPEM, err := EncodePrivateKeyPEM(key)
	if err != nil {
		return nil, err
	}
	chainPEM := append(append([]byte{}, certPEM...), i.authority.CertificatePEM()...)

	return writeMaterial(certDir, certPEM, keyPEM, chainPEM)
}

// Import installs externally obtained certificate material into the
// certificate slot. The key must match the certificate; names the
// certificate does not cover are reported with a warning, not a failure,
// since a partially covering certificate still serves the covered names.
func Import(certDir string, certPEM, keyPEM, chainPEM []byte, requiredNames []string, logger logging.Logger) (*Material, error) {
	if _, err := tls.X509KeyPair(certPEM, keyPEM); err != nil {
		return nil, errors.NewCertificateError("certificate and key do not match", err)
	}

	certificate, err := ParseCertificatePEM(certPEM)
	if err != nil {
		return nil, err
	}

	if missing := uncoveredNames(certificate, requiredNames); len(missing) > 0 {
		logger.Warnf("Imported certificate does not cover all names, missing: %s", strings.Join(missing, ", "))
	}

	if len(chainPEM) == 0 {
		chainPEM = certPEM
	}
	if _, err := ParseCertificatesPEM(chainPEM); err != nil {
		return nil, err
	}

	logger.Infof("Importing certificate, dir: %s, subject: %s", certDir, certificate.Subject.CommonName)

	return writeMaterial(certDir, certPEM, keyPEM, chainPEM)
}

// LoadMaterial returns the material already present in a certificate slot
func LoadMaterial(certDir string) (*Material, error) {
	material := materialPaths(certDir)
	for _, path := range []string{material.CertificateFile, material.KeyFile} {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.NewNotFoundError("certificate slot is empty", err).WithContext("path", path)
		}
	}
	if _, err := os.Stat(material.ChainFile); err != nil {
		material.ChainFile = ""
	}
	return material, nil
}

// Covers reports whether the certificate in the slot covers every given name
func Covers(certificateFile string, names []string) (bool, error) {
	data, err := os.ReadFile(certificateFile)
	if err != nil {
		return false, errors.NewIOError("failed to read certificate", err).WithContext("path", certificateFile)
	}
	certificate, err := ParseCertificatePEM(data)
	if err != nil {
		return false, err
	}
	return len(uncoveredNames(certificate, names)) == 0, nil
}

func writeMaterial(certDir string, certPEM, keyPEM, chainPEM []byte) (*Material, error) {
	if err := os.MkdirAll(certDir, 0700); err != nil {
		return nil, errors.NewIOError("failed to create certificate directory", err).WithContext("path", certDir)
	}

	material := materialPaths(certDir)
	if err := state.WriteFileAtomic(material.KeyFile, keyPEM, 0600); err != nil {
		return nil, err
	}
	if err := state.WriteFileAtomic(material.CertificateFile, certPEM, 0644); err != nil {
		return nil, err
	}
	if err := state.WriteFileAtomic(material.ChainFile, chainPEM, 0644); err != nil {
		return nil, err
	}

	return material, nil
}

func uncoveredNames(certificate *x509.Certificate, names []string) []string {
	var missing []string
	for _, name := range names {
		if ip := net.ParseIP(name); ip != nil {
			if !coversIP(certificate, ip) {
				missing = append(missing, name)
			}
			continue
		}
		if certificate.VerifyHostname(name) != nil {
			missing = append(missing, name)
		}
	}
	return missing
}

func coversIP(certificate *x509.Certificate, ip net.IP) bool {
	for _, candidate := range certificate.IPAddresses {
		if candidate.Equal(ip) {
			return true
		}
	}
	return false
}

// chainPEMBytes flattens certificates back into a PEM bundle
func chainPEMBytes(certificates []*x509.Certificate) []byte {
	var buf bytes.Buffer
	for _, certificate := range certificates {
		buf.Write(EncodeCertificatePEM(certificate.Raw))
	}
	return buf.Bytes()
}
