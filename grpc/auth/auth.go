// Package auth configures static API key authentication for gRPC servers.
package auth

const (
	DefaultHeaderName = "authorization"
	DefaultScheme     = "Bearer"
	// AuthTypeAPIKey is the principal auth type recorded for callers authenticated by key.
	AuthTypeAPIKey = "ApiKey"
)

// ConfigOption customises Config.
type ConfigOption func(*Config)

// WithAuthHeaderName sets the metadata key carrying the credentials.
func WithAuthHeaderName(name string) ConfigOption {
	return func(c *Config) {
		c.HeaderName = name
	}
}

// WithAuthScheme sets the expected scheme, e.g. "Bearer".
func WithAuthScheme(scheme string) ConfigOption {
	return func(c *Config) {
		c.Scheme = scheme
	}
}

// WithSkipAuthMethods exempts full method names from authentication.
func WithSkipAuthMethods(methods ...string) ConfigOption {
	return func(c *Config) {
		for _, method := range methods {
			c.SkipMethods[method] = true
		}
	}
}

// WithClientKey accepts key and records callers presenting it as client.
func WithClientKey(client, key string) ConfigOption {
	return func(c *Config) {
		c.Enabled = true
		c.Keys[key] = client
	}
}

// Config holds the authentication settings.
type Config struct {
	Enabled     bool
	HeaderName  string
	Scheme      string
	Keys        map[string]string // API key -> client name
	SkipMethods map[string]bool
}

// NewConfig returns a disabled config with the default header and scheme.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := &Config{
		HeaderName:  DefaultHeaderName,
		Scheme:      DefaultScheme,
		Keys:        make(map[string]string),
		SkipMethods: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
