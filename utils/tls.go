package utils

import (
	"fmt"
	"strings"

	"github.com/bogdanfinn/fhttp/http2"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
	tls "github.com/bogdanfinn/utls"
)

// Client profiles per browser family, so the payload leaves with the same
// TLS and HTTP/2 shape as the page that produced it.
var familyProfiles = map[string]profiles.ClientProfile{
	"chrome":  profiles.Chrome_133,
	"edge":    profiles.Chrome_131,
	"firefox": profiles.Firefox_133,
	"safari":  profiles.Safari_IOS_18_0,
}

// ClientProfileFor resolves the configured profile name. "auto" (or empty)
// follows family; unknown families fall back to chrome.
func ClientProfileFor(cfg TransportConfig, family string) (profiles.ClientProfile, error) {
	if cfg.JA3 != "" {
		return customJA3Profile(cfg.JA3)
	}

	name := strings.ToLower(cfg.Profile)
	if name == "" || name == "auto" {
		name = strings.ToLower(family)
	}
	if p, ok := familyProfiles[name]; ok {
		return p, nil
	}
	if cfg.Profile != "" && cfg.Profile != "auto" {
		return profiles.ClientProfile{}, fmt.Errorf("unknown transport profile %q", cfg.Profile)
	}
	return familyProfiles["chrome"], nil
}

// customJA3Profile builds a chrome-like profile from a raw JA3 string.
func customJA3Profile(ja3 string) (profiles.ClientProfile, error) {
	signatureAlgorithms := []string{
		"ECDSAWithP256AndSHA256",
		"PSSWithSHA256",
		"PKCS1WithSHA256",
		"ECDSAWithP384AndSHA384",
		"PSSWithSHA384",
		"PKCS1WithSHA384",
		"PSSWithSHA512",
		"PKCS1WithSHA512",
	}
	supportedVersions := []string{"GREASE", "1.3", "1.2"}
	supportedGroups := []string{"GREASE", "X25519", "secp256r1", "secp384r1"}
	cipherSuites := []tls_client.CandidateCipherSuites{
		{KdfId: "HKDF_SHA256", AeadId: "AEAD_AES_128_GCM"},
		{KdfId: "HKDF_SHA256", AeadId: "AEAD_AES_256_GCM"},
		{KdfId: "HKDF_SHA256", AeadId: "AEAD_CHACHA20_POLY1305"},
	}

	specFunc, err := tls_client.GetSpecFactoryFromJa3String(
		ja3, signatureAlgorithms, signatureAlgorithms, supportedVersions,
		supportedGroups, []string{"h2", "http/1.1"}, []string{"h2"}, cipherSuites,
		[]uint16{128, 160, 192, 224}, "brotli",
	)
	if err != nil {
		return profiles.ClientProfile{}, fmt.Errorf("invalid ja3: %w", err)
	}
	// The factory parses lazily, surface a malformed string now.
	if _, err := specFunc(); err != nil {
		return profiles.ClientProfile{}, fmt.Errorf("invalid ja3: %w", err)
	}

	settings := map[http2.SettingID]uint32{
		http2.SettingHeaderTableSize:   65536,
		http2.SettingEnablePush:        0,
		http2.SettingInitialWindowSize: 6291456,
		http2.SettingMaxHeaderListSize: 262144,
	}
	settingsOrder := []http2.SettingID{
		http2.SettingHeaderTableSize,
		http2.SettingEnablePush,
		http2.SettingInitialWindowSize,
		http2.SettingMaxHeaderListSize,
	}

	return profiles.NewClientProfile(
		tls.ClientHelloID{Client: "CustomJA3", Version: "1", SpecFactory: specFunc},
		settings,
		settingsOrder,
		[]string{":method", ":authority", ":scheme", ":path"},
		uint32(15663105),
		nil,
		nil,
	), nil
}

// NewTransportClient creates the payload client. No cookie jar: the
// collector must not carry state between sends.
func NewTransportClient(cfg TransportConfig, family string) (tls_client.HttpClient, error) {
	profile, err := ClientProfileFor(cfg, family)
	if err != nil {
		return nil, err
	}

	timeout := int(cfg.Timeout.Seconds())
	if timeout <= 0 {
		timeout = 15
	}
	options := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(timeout),
		tls_client.WithClientProfile(profile),
		tls_client.WithNotFollowRedirects(),
	}
	if cfg.Proxy != "" {
		options = append(options, tls_client.WithProxyUrl(cfg.Proxy))
	}

	client, err := tls_client.NewHttpClient(tls_client.NewNoopLogger(), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}
