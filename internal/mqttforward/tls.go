package mqttforward

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// loadCACertPool builds a tls.Config trusting only the CA certificate at
// path, matching the original implementation's client.tls_set(ca_certs).
func loadCACertPool(path string) (*tls.Config, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mqttforward: read CA cert %s: %w", path, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("mqttforward: no certificates found in %s", path)
	}
	return &tls.Config{RootCAs: pool}, nil
}
