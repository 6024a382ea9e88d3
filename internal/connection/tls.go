package connection

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TLSConfigFromCertsDir builds a client TLS configuration from a directory
// of PEM certificates. The certificates are added to the system root pool;
// a directory containing no parseable certificate is a configuration error.
func TLSConfigFromCertsDir(dir string) (*tls.Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read certs dir: %w", err)
	}

	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}

	added := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.ToLower(entry.Name())
		if !strings.HasSuffix(name, ".pem") && !strings.HasSuffix(name, ".crt") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read cert %s: %w", entry.Name(), err)
		}
		if pool.AppendCertsFromPEM(data) {
			added++
		}
	}

	if added == 0 {
		return nil, fmt.Errorf("%w: no PEM certificates in %s", ErrBadConfig, dir)
	}

	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}
