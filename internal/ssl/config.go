// Package ssl builds the server's TLS configuration, including optional
// verification of client certificates for the mTLS gate.
package ssl

import (
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"os"

	"github.com/pkg/errors"
)

// Options selects the server certificate and the client CA bundle.
type Options struct {
	CertFile     string
	KeyFile      string
	ClientCAFile string

	// Hosts are used for a self-signed certificate when no CertFile is set.
	Hosts []string
}

// ServerConfig builds the server's TLS configuration. Client certificates are
// requested and, when presented, verified against the client CA bundle. A
// connection without one is still accepted; routes that need one are guarded
// at the HTTP layer.
func ServerConfig(opts Options) (*tls.Config, error) {
	var cert tls.Certificate
	var err error
	if opts.CertFile != "" {
		cert, err = tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "loading server certificate")
		}
	} else {
		cert, err = selfSigned(opts.Hosts)
		if err != nil {
			return nil, err
		}
	}

	config := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}

	if opts.ClientCAFile != "" {
		pool, err := loadCertPool(opts.ClientCAFile)
		if err != nil {
			return nil, err
		}
		config.ClientCAs = pool
		config.ClientAuth = tls.VerifyClientCertIfGiven
	}

	return config, nil
}

func loadCertPool(file string) (*x509.CertPool, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrap(err, "reading client CA bundle")
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(b) {
		return nil, errors.Errorf("no certificates found in %s", file)
	}
	return pool, nil
}

func selfSigned(hosts []string) (tls.Certificate, error) {
	priv, err := GenerateKey(x509.ECDSA)
	if err != nil {
		return tls.Certificate{}, err
	}
	cert, err := GenerateCertificate(priv, CertificateOptions{
		Hosts:   hosts,
		Subject: pkix.Name{Organization: []string{"Identity Development"}},
	})
	if err != nil {
		return tls.Certificate{}, err
	}
	return cert.TLSCertificate()
}
