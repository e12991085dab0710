package invoker

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/softslim/soapbridge/config"
	"github.com/softslim/soapbridge/internal/errors"
)

// ClientTLSConfig builds the outbound TLS client identity for a service from
// its mutual-TLS settings. The keystore is a PEM file holding the client
// certificate and private key; the optional truststore is a PEM CA bundle
// the backend's certificate is verified against. Returns nil when mutual TLS
// is disabled.
//
// The identity is constructed once per service and passed into the client
// that carries it; no process-wide TLS state is mutated.
func ClientTLSConfig(cfg *config.MutualTLSConfig) (*tls.Config, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	if cfg.KeystorePath == "" {
		return nil, errors.Configurationf("missing configuration: mutualTls.keystorePath")
	}
	if cfg.KeystorePassword == "" {
		return nil, errors.Configurationf("missing configuration: mutualTls.keystorePassword")
	}
	if err := ensureReadable(cfg.KeystorePath); err != nil {
		return nil, errors.Configurationf("file not accessible for mutualTls.keystorePath: %s", cfg.KeystorePath).Wrap(err)
	}

	cert, err := tls.LoadX509KeyPair(cfg.KeystorePath, cfg.KeystorePath)
	if err != nil {
		return nil, errors.Configurationf("failed to load client certificate from %s", cfg.KeystorePath).Wrap(err)
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if cfg.TruststorePath != "" {
		if err := ensureReadable(cfg.TruststorePath); err != nil {
			return nil, errors.Configurationf("file not accessible for mutualTls.truststorePath: %s", cfg.TruststorePath).Wrap(err)
		}
		caCert, err := os.ReadFile(cfg.TruststorePath)
		if err != nil {
			return nil, errors.Configurationf("failed to read truststore %s", cfg.TruststorePath).Wrap(err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, errors.Configurationf("no CA certificates found in truststore %s", cfg.TruststorePath)
		}
		tlsCfg.RootCAs = pool
	}

	return tlsCfg, nil
}

func ensureReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}
