package cfbypass

import (
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
)

// DefaultUserAgent is sent by both the transport and the solve browser so
// the clearance token is minted against the same identity it is spent with.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36"

// DefaultProfile is the TLS fingerprint used for new clients. It must stay
// in step with DefaultUserAgent; a mismatch is a common block cause.
var DefaultProfile = profiles.Chrome_133

// NewClient builds the transport the interceptor wraps: a TLS-fingerprinting
// HTTP client with its own cookie jar and no redirect following, so
// challenge redirects surface to the interceptor instead of being chased.
func NewClient(logger tls_client.Logger, proxyURL string) (tls_client.HttpClient, error) {
	return NewClientWithProfile(logger, proxyURL, DefaultProfile)
}

func NewClientWithProfile(logger tls_client.Logger, proxyURL string, profile profiles.ClientProfile) (tls_client.HttpClient, error) {
	if logger == nil {
		logger = tls_client.NewNoopLogger()
	}

	jar := tls_client.NewCookieJar()
	options := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(30),
		tls_client.WithClientProfile(profile),
		tls_client.WithRandomTLSExtensionOrder(),
		tls_client.WithNotFollowRedirects(),
		tls_client.WithCookieJar(jar),
	}

	if proxyURL != "" {
		options = append(options, tls_client.WithProxyUrl(proxyURL))
	}

	return tls_client.NewHttpClient(logger, options...)
}
