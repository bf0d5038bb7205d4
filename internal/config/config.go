// Package config manages application configuration from environment variables,
// config files, and default values.
package config

const (
	sandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	productionBaseURL = "https://api.safaricom.co.ke"
)

// BaseURL returns the Daraja host for the configured environment.
func (c *MPesaConfig) BaseURL() string {
	if c.Environment == "production" {
		return productionBaseURL
	}
	return sandboxBaseURL
}
