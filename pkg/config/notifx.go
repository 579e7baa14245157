package config

import (
	"fmt"
	"net/mail"
)

const (
	EmailProviderConsole = "console"
	EmailProviderSES     = "ses"
)

// NotifxConfig selects where verification emails go. The console provider
// only logs them.
type NotifxConfig struct {
	Provider    string
	FromAddress string
	FromName    string
	AWSRegion   string
	// SESConfigurationSet is optional; SES ignores it when empty.
	SESConfigurationSet string
}

// Sender is the RFC 5322 From header, e.g. "Gatekeeper <noreply@gatekeeper.dev>".
func (n NotifxConfig) Sender() string {
	return (&mail.Address{Name: n.FromName, Address: n.FromAddress}).String()
}

func (n NotifxConfig) validate() error {
	switch n.Provider {
	case EmailProviderConsole, EmailProviderSES:
	default:
		return fmt.Errorf("NOTIFX_PROVIDER must be %q or %q, got %q", EmailProviderConsole, EmailProviderSES, n.Provider)
	}
	if _, err := mail.ParseAddress(n.FromAddress); err != nil {
		return fmt.Errorf("NOTIFX_FROM_ADDRESS: %w", err)
	}
	return nil
}

func loadNotifxConfig() NotifxConfig {
	return NotifxConfig{
		Provider:    getEnv("NOTIFX_PROVIDER", EmailProviderConsole),
		FromAddress: getEnv("NOTIFX_FROM_ADDRESS", "noreply@gatekeeper.dev"),
		FromName:    getEnv("NOTIFX_FROM_NAME", "Gatekeeper"),
		AWSRegion:   getEnv("NOTIFX_AWS_REGION", getEnv("AWS_REGION", "us-east-1")),

		SESConfigurationSet: getEnv("NOTIFX_SES_CONFIGURATION_SET", ""),
	}
}
