package certs

import (
	"bytes"
	"crypto/x509"
	"io"
	"net/http"
	"time"

	"github.com/core-tools/hsu-launcher/pkg/errors"
	"github.com/core-tools/hsu-launcher/pkg/logging"
)

const (
	chainFetchTimeout = 10 * time.Second
	maxChainDepth     = 5
	maxChainCertSize  = 1 << 20
)

// ChainResolver completes a certificate chain by following the CA Issuers
// URLs embedded in each certificate. Public CAs commonly hand out leaves
// without intermediates; without the full chain some clients reject the
// server.
type ChainResolver struct {
	client *http.Client
	logger logging.Logger
}

func NewChainResolver(logger logging.Logger) *ChainResolver {
	return &ChainResolver{
		client: &http.Client{Timeout: chainFetchTimeout},
		logger: logger,
	}
}

// Resolve returns the PEM bundle of the given certificates extended with
// every reachable issuer, leaf first. Resolution stops at a self-signed
// certificate, at a certificate without issuer URLs, or at the depth bound.
func (r *ChainResolver) Resolve(certificates []*x509.Certificate) ([]byte, error) {
	if len(certificates) == 0 {
		return nil, errors.NewValidationError("empty certificate chain", nil)
	}

	chain := append([]*x509.Certificate{}, certificates...)

	for len(chain) < maxChainDepth {
		last := chain[len(chain)-1]
		if isSelfSigned(last) || len(last.IssuingCertificateURL) == 0 {
			break
		}

		issuer := r.fetchIssuer(last)
		if issuer == nil {
			break
		}

		r.logger.Debugf("Fetched chain certificate, subject: %s", issuer.Subject.CommonName)
		chain = append(chain, issuer)
	}

	return chainPEMBytes(chain), nil
}

func (r *ChainResolver) fetchIssuer(certificate *x509.Certificate) *x509.Certificate {
	for _, url := range certificate.IssuingCertificateURL {
		issuer, err := r.fetchCertificate(url)
		if err != nil {
			r.logger.Warnf("Failed to fetch chain certificate, url: %s, error: %v", url, err)
			continue
		}
		return issuer
	}
	return nil
}

func (r *ChainResolver) fetchCertificate(url string) (*x509.Certificate, error) {
	response, err := r.client.Get(url)
	if err != nil {
		return nil, errors.NewNetworkError("certificate fetch failed", err).WithContext("url", url)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, errors.NewNetworkError("certificate fetch returned non-OK status", nil).
			WithContext("url", url).WithContext("status", response.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(response.Body, maxChainCertSize))
	if err != nil {
		return nil, errors.NewNetworkError("certificate fetch read failed", err).WithContext("url", url)
	}

	// CA Issuers endpoints serve either DER or PEM
	if bytes.Contains(data, []byte("-----BEGIN")) {
		return ParseCertificatePEM(data)
	}
	certificate, err := x509.ParseCertificate(data)
	if err != nil {
		return nil, errors.NewCertificateError("failed to parse fetched certificate", err).WithContext("url", url)
	}
	return certificate, nil
}

func isSelfSigned(certificate *x509.Certificate) bool {
	return bytes.Equal(certificate.RawSubject, certificate.RawIssuer)
}
