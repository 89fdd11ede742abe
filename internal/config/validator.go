package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "channel.send_buffer")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError
	errors = append(errors, c.validateIdentity()...)
	errors = append(errors, c.validateAuth()...)
	errors = append(errors, c.validateChannel()...)
	errors = append(errors, c.validateSession()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validatePaths()...)
	return errors
}

func positive(field string, v int) []ValidationError {
	if v > 0 {
		return nil
	}
	return []ValidationError{{Field: field, Value: v, Message: "must be positive"}}
}

func (c *Config) validateIdentity() []ValidationError {
	var errors []ValidationError
	errors = append(errors, positive("identity.poll_interval_ms", c.Identity.PollIntervalMs)...)
	errors = append(errors, positive("identity.helper_timeout_ms", c.Identity.HelperTimeoutMs)...)
	errors = append(errors, positive("identity.max_backoff_seconds", c.Identity.MaxBackoffSeconds)...)
	errors = append(errors, positive("identity.shutdown_join_ms", c.Identity.ShutdownJoinMs)...)

	if strings.TrimSpace(c.Identity.ProviderProcess) == "" {
		errors = append(errors, ValidationError{
			Field:   "identity.provider_process",
			Value:   c.Identity.ProviderProcess,
			Message: "must not be empty",
		})
	}

	// The provider can take ~8s to issue a ticket.
	const minHelperTimeoutMs = 1000
	if c.Identity.HelperTimeoutMs > 0 && c.Identity.HelperTimeoutMs < minHelperTimeoutMs {
		errors = append(errors, ValidationError{
			Field:   "identity.helper_timeout_ms",
			Value:   c.Identity.HelperTimeoutMs,
			Message: fmt.Sprintf("must be at least %d", minHelperTimeoutMs),
		})
	}

	if strings.ContainsRune(c.Identity.HelperPath, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "identity.helper_path",
			Value:   c.Identity.HelperPath,
			Message: "path contains invalid null character",
		})
	}
	return errors
}

func validateURL(field, raw string, schemes ...string) []ValidationError {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return []ValidationError{{Field: field, Value: raw, Message: "must be an absolute URL"}}
	}
	if !slices.Contains(schemes, u.Scheme) {
		return []ValidationError{{
			Field:   field,
			Value:   raw,
			Message: fmt.Sprintf("scheme must be one of: %s", strings.Join(schemes, ", ")),
		}}
	}
	return nil
}

func (c *Config) validateAuth() []ValidationError {
	var errors []ValidationError
	errors = append(errors, validateURL("auth.base_url", c.Auth.BaseURL, "http", "https")...)
	errors = append(errors, positive("auth.timeout_ms", c.Auth.TimeoutMs)...)
	if strings.TrimSpace(c.Auth.ExchangePath) == "" {
		errors = append(errors, ValidationError{
			Field:   "auth.exchange_path",
			Value:   c.Auth.ExchangePath,
			Message: "must not be empty",
		})
	}
	return errors
}

func (c *Config) validateChannel() []ValidationError {
	var errors []ValidationError
	errors = append(errors, validateURL("channel.socket_url", c.Channel.SocketURL, "ws", "wss", "http", "https")...)
	errors = append(errors, positive("channel.connect_timeout_ms", c.Channel.ConnectTimeoutMs)...)
	errors = append(errors, positive("channel.send_buffer", c.Channel.SendBuffer)...)
	if c.Channel.Reconnect {
		errors = append(errors, positive("channel.reconnect_max_seconds", c.Channel.ReconnectMaxSeconds)...)
	}
	return errors
}

func (c *Config) validateSession() []ValidationError {
	var errors []ValidationError
	errors = append(errors, positive("session.party_refresh_interval_ms", c.Session.PartyRefreshIntervalMs)...)
	errors = append(errors, positive("session.invite_timeout_seconds", c.Session.InviteTimeoutSeconds)...)
	errors = append(errors, positive("session.invite_search_limit", c.Session.InviteSearchLimit)...)
	errors = append(errors, positive("session.lookup_cache_size", c.Session.LookupCacheSize)...)

	if c.Session.InviteSearchDebounceMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "session.invite_search_debounce_ms",
			Value:   c.Session.InviteSearchDebounceMs,
			Message: "must be non-negative",
		})
	}
	if c.Session.MaxPartySize < 2 {
		errors = append(errors, ValidationError{
			Field:   "session.max_party_size",
			Value:   c.Session.MaxPartySize,
			Message: "must be at least 2",
		})
	}
	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	errors = append(errors, positive("logging.max_size_mb", c.Logging.MaxSizeMB)...)

	const maxLogSizeMB = 1000
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validatePaths() []ValidationError {
	var errors []ValidationError

	if path := c.Paths.DataDir; path != "" {
		if strings.ContainsRune(path, '\x00') {
			errors = append(errors, ValidationError{
				Field:   "paths.data_dir",
				Value:   path,
				Message: "path contains invalid null character",
			})
		}
		const maxPathLength = 4096
		if len(path) > maxPathLength {
			errors = append(errors, ValidationError{
				Field:   "paths.data_dir",
				Value:   path,
				Message: fmt.Sprintf("path exceeds maximum length of %d characters", maxPathLength),
			})
		}
	}

	return errors
}
