package netenv

import "os"

// SSLConfig holds the TLS-related environment overrides relay reads:
// SSL_CERT_FILE/SSL_CERT_DIR for the trust store and SSLKEYLOGFILE for
// debugging TLS session keys.
type SSLConfig struct {
	CertFile    string
	CertDir     string
	KeyLogFile  string
}

// SSLFromEnvironment reads SSL_CERT_FILE, SSL_CERT_DIR and SSLKEYLOGFILE.
func SSLFromEnvironment() SSLConfig {
	return SSLConfig{
		CertFile:   os.Getenv("SSL_CERT_FILE"),
		CertDir:    os.Getenv("SSL_CERT_DIR"),
		KeyLogFile: os.Getenv("SSLKEYLOGFILE"),
	}
}
