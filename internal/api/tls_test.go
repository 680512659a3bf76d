package api

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeSelfSigned writes a throwaway certificate and key for localhost.
func writeSelfSigned(t *testing.T) (certPath, keyPath string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "scenereel-shell"},
		DNSNames:     []string{"localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}

	dir := t.TempDir()
	certPath = filepath.Join(dir, "shell.crt")
	keyPath = filepath.Join(dir, "shell.key")
	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatalf("failed to write cert: %v", err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}
	return certPath, keyPath
}

func TestInitTLSFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		cert    string
		key     string
		enabled bool
		wantErr error
	}{
		{"plain http", "", "", false, nil},
		{"cert only", "/etc/scenereel/shell.crt", "", false, ErrTLSHalfConfigured},
		{"key only", "", "/etc/scenereel/shell.key", false, ErrTLSHalfConfigured},
		{"both", "/etc/scenereel/shell.crt", "/etc/scenereel/shell.key", true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SCENEREEL_TLS_CERT", tt.cert)
			t.Setenv("SCENEREEL_TLS_KEY", tt.key)
			InitTLS()
			defer setServerTLS(nil, nil)

			tlsMu.RLock()
			pair, err := tlsFiles, tlsErr
			tlsMu.RUnlock()

			if (pair != nil) != tt.enabled {
				t.Errorf("expected enabled=%v, got pair %+v", tt.enabled, pair)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected error %v, got %v", tt.wantErr, err)
			}
			if pair != nil && (pair.cert != tt.cert || pair.key != tt.key) {
				t.Errorf("unexpected pair %+v", pair)
			}
		})
	}
}

func TestServerTLSConfigLoadsPair(t *testing.T) {
	certPath, keyPath := writeSelfSigned(t)
	setServerTLS(&certPair{cert: certPath, key: keyPath}, nil)
	defer setServerTLS(nil, nil)

	cfg, err := serverTLSConfig()
	if err != nil {
		t.Fatalf("failed to load tls config: %v", err)
	}
	if cfg == nil || len(cfg.Certificates) != 1 {
		t.Fatalf("expected one certificate, got %+v", cfg)
	}
	if cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("expected TLS 1.2 minimum, got %x", cfg.MinVersion)
	}
}

func TestServerTLSConfigPlainHTTP(t *testing.T) {
	setServerTLS(nil, nil)

	cfg, err := serverTLSConfig()
	if err != nil || cfg != nil {
		t.Errorf("expected plain http, got %+v %v", cfg, err)
	}
}

func TestListenAndServeRefusesBrokenTLS(t *testing.T) {
	dir := t.TempDir()
	setServerTLS(&certPair{cert: filepath.Join(dir, "missing.crt"), key: filepath.Join(dir, "missing.key")}, nil)
	defer setServerTLS(nil, nil)

	done := make(chan error, 1)
	go func() { done <- ListenAndServe(0) }()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected an error for unreadable certificate files")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server started without its certificate")
	}

	setServerTLS(nil, ErrTLSHalfConfigured)
	if err := ListenAndServe(0); !errors.Is(err, ErrTLSHalfConfigured) {
		t.Errorf("expected ErrTLSHalfConfigured, got %v", err)
	}
}
