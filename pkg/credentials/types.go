package credentials

// Credentials is the content of credentials.toml.
type Credentials struct {
	Version   int                           `toml:"version"`
	Providers map[string]ProviderCredential `toml:"providers"`
}

// ProviderCredential holds the API key of one analysis or embedding provider.
type ProviderCredential struct {
	APIKey string `toml:"api_key"`
}
