package ssl

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"time"

	"github.com/pkg/errors"
)

var (
	defaultRsaBits    int            = 2048
	defaultEcdsaCurve elliptic.Curve = elliptic.P256()
	defaultValidFor   time.Duration  = 365 * 24 * time.Hour
)

// GenerateKey creates a private key for the given algorithm. RSA, ECDSA, and
// Ed25519 keys are supported.
func GenerateKey(keyType x509.PublicKeyAlgorithm) (crypto.Signer, error) {
	switch keyType {
	case x509.ECDSA:
		return ecdsa.GenerateKey(defaultEcdsaCurve, rand.Reader)
	case x509.RSA:
		return rsa.GenerateKey(rand.Reader, defaultRsaBits)
	case x509.Ed25519:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		return priv, err
	}
	return nil, errors.Errorf("unsupported key type %v", keyType)
}

// Certificate is a generated certificate with its private key.
type Certificate struct {
	Cert    *x509.Certificate
	Key     crypto.Signer
	CertPEM []byte
	KeyPEM  []byte
}

// TLSCertificate converts c for use in a tls.Config.
func (c *Certificate) TLSCertificate() (tls.Certificate, error) {
	return tls.X509KeyPair(c.CertPEM, c.KeyPEM)
}

// CertificateOptions describes a certificate to generate.
type CertificateOptions struct {
	Hosts     []string
	Subject   pkix.Name
	ValidFrom time.Time     // defaults to now
	ValidFor  time.Duration // defaults to one year
	IsCA      bool

	// Usage defaults to server authentication.
	Usage []x509.ExtKeyUsage

	// Parent signs the certificate. Self-signed when nil.
	Parent *Certificate
}

// GenerateCertificate creates a certificate for priv.
func GenerateCertificate(priv crypto.Signer, opts CertificateOptions) (*Certificate, error) {
	// ECDSA, ED25519 and RSA subject keys should have the DigitalSignature
	// KeyUsage bits set in the x509.Certificate template
	keyUsage := x509.KeyUsageDigitalSignature

	// Only RSA subject keys should have the KeyEncipherment KeyUsage bits set.
	if _, isRSA := priv.(*rsa.PrivateKey); isRSA {
		keyUsage |= x509.KeyUsageKeyEncipherment
	}

	notBefore := opts.ValidFrom
	if notBefore.IsZero() {
		notBefore = time.Now()
	}
	validFor := opts.ValidFor
	if validFor <= 0 {
		validFor = defaultValidFor
	}
	usage := opts.Usage
	if len(usage) == 0 {
		usage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	}

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate serial number")
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject:      opts.Subject,
		NotBefore:    notBefore,
		NotAfter:     notBefore.Add(validFor),

		KeyUsage:              keyUsage,
		ExtKeyUsage:           usage,
		BasicConstraintsValid: true,
	}

	for _, h := range opts.Hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else if h != "" {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	if opts.IsCA {
		template.IsCA = true
		template.KeyUsage |= x509.KeyUsageCertSign
	}

	parent, signer := template, priv
	if opts.Parent != nil {
		parent, signer = opts.Parent.Cert, opts.Parent.Key
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, template, parent, priv.Public(), signer)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create certificate")
	}
	cert, err := x509.ParseCertificate(derBytes)
	if err != nil {
		return nil, err
	}

	certOut, keyOut := new(bytes.Buffer), new(bytes.Buffer)
	if err := pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: derBytes}); err != nil {
		return nil, errors.Wrap(err, "failed to encode certificate")
	}
	privBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, errors.Wrap(err, "unable to marshal private key")
	}
	if err := pem.Encode(keyOut, &pem.Block{Type: "PRIVATE KEY", Bytes: privBytes}); err != nil {
		return nil, errors.Wrap(err, "failed to encode private key")
	}

	return &Certificate{
		Cert:    cert,
		Key:     priv,
		CertPEM: certOut.Bytes(),
		KeyPEM:  keyOut.Bytes(),
	}, nil
}
