package session

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"time"

	"github.com/pkg/errors"
)

// GenerateServerTLSConfig returns a self-signed TLS config suitable for
// quic.ListenAddr. QUIC mandates TLS 1.3; LAN play has no certificate
// authority to hand out real certs, so the server mints a single
// ephemeral keypair on startup.
func GenerateServerTLSConfig() (*tls.Config, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "session: generate key")
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "spacelock"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, errors.Wrap(err, "session: create certificate")
	}
	cert := tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"spacelock"},
	}, nil
}

// ClientTLSConfig returns the client-side TLS config matching
// GenerateServerTLSConfig's self-signed certificate. InsecureSkipVerify
// must stay true for LAN play without a distributed CA; this transport
// targets LAN sessions, not the open internet.
func ClientTLSConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{"spacelock"},
	}
}
