package tlsutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"order-service/internal/util"
)

// Config selects the certificate source: provided cert/key files, or a
// self-signed development certificate when none are configured.
type Config struct {
	EnableTLS   bool
	CertFile    string
	KeyFile     string
	CertDir     string
	Environment string
}

type Manager struct {
	config *Config
}

func NewManager(cfg *Config) *Manager {
	if cfg.CertDir == "" {
		cfg.CertDir = "certs"
	}
	return &Manager{config: cfg}
}

// GetTLSConfig returns the server TLS configuration, or nil when TLS is
// disabled. Production requires real certificate files; development falls
// back to a generated self-signed certificate.
func (m *Manager) GetTLSConfig(hosts []string) (*tls.Config, error) {
	if !m.config.EnableTLS {
		return nil, nil
	}

	var cert tls.Certificate
	var err error
	switch {
	case m.config.CertFile != "" && m.config.KeyFile != "":
		cert, err = tls.LoadX509KeyPair(m.config.CertFile, m.config.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load certificate files: %w", err)
		}
		util.Info("Loaded TLS certificate from files",
			zap.String("cert_file", m.config.CertFile))
	case m.config.Environment == "production":
		return nil, fmt.Errorf("production TLS requires cert and key files")
	default:
		cert, err = m.generateDevCert(hosts)
		if err != nil {
			return nil, err
		}
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// generateDevCert loads a cached self-signed certificate or mints a new
// one-year certificate for the given hosts.
func (m *Manager) generateDevCert(hosts []string) (tls.Certificate, error) {
	certPath := filepath.Join(m.config.CertDir, "dev-cert.pem")
	keyPath := filepath.Join(m.config.CertDir, "dev-key.pem")

	if cert, err := tls.LoadX509KeyPair(certPath, keyPath); err == nil {
		if certStillValid(certPath) {
			util.Info("Using existing development certificate", zap.String("cert_path", certPath))
			return cert, nil
		}
	}

	util.Info("Generating self-signed development certificate", zap.Strings("hosts", hosts))

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to generate private key: %w", err)
	}

	serialNumber, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"Order Service Development"},
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to create certificate: %w", err)
	}

	if err := os.MkdirAll(m.config.CertDir, 0o755); err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to create cert dir: %w", err)
	}

	certOut, err := os.Create(certPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to open cert file for writing: %w", err)
	}
	pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: derBytes})
	certOut.Close()

	keyOut, err := os.OpenFile(keyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to open key file for writing: %w", err)
	}
	pem.Encode(keyOut, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
	keyOut.Close()

	return tls.LoadX509KeyPair(certPath, keyPath)
}

func certStillValid(certPath string) bool {
	certData, err := os.ReadFile(certPath)
	if err != nil {
		return false
	}
	block, _ := pem.Decode(certData)
	if block == nil {
		return false
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return false
	}
	now := time.Now()
	return now.After(cert.NotBefore) && now.Before(cert.NotAfter)
}
