package api

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
)

// ErrTLSHalfConfigured is returned when only one of the certificate and
// key paths is set.
var ErrTLSHalfConfigured = errors.New("api: SCENEREEL_TLS_CERT and SCENEREEL_TLS_KEY must be set together")

// certPair names the PEM files the control API serves with.
type certPair struct {
	cert string
	key  string
}

var (
	tlsMu    sync.RWMutex
	tlsFiles *certPair
	tlsErr   error
)

// InitTLS reads SCENEREEL_TLS_CERT and SCENEREEL_TLS_KEY. Neither set
// means plain HTTP. Setting only one is remembered as an error so the
// server refuses to start instead of silently serving without TLS.
func InitTLS() {
	cert := os.Getenv("SCENEREEL_TLS_CERT")
	key := os.Getenv("SCENEREEL_TLS_KEY")

	var pair *certPair
	var err error
	switch {
	case cert == "" && key == "":
	case cert == "" || key == "":
		err = ErrTLSHalfConfigured
		log.Printf("[api] %v", err)
	default:
		pair = &certPair{cert: cert, key: key}
	}
	setServerTLS(pair, err)
}

func setServerTLS(pair *certPair, err error) {
	tlsMu.Lock()
	tlsFiles, tlsErr = pair, err
	tlsMu.Unlock()
}

// serverTLSConfig returns the listener's TLS settings, nil for plain
// HTTP. A configured pair that cannot be loaded is an error.
func serverTLSConfig() (*tls.Config, error) {
	tlsMu.RLock()
	pair, err := tlsFiles, tlsErr
	tlsMu.RUnlock()

	if err != nil {
		return nil, err
	}
	if pair == nil {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(pair.cert, pair.key)
	if err != nil {
		return nil, fmt.Errorf("api: load tls certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
