package am

import (
	"net/url"

	"github.com/teranos/courier/errors"
)

// Validate checks that the configuration is internally consistent.
// Missing broker settings are not errors here; commands that need the
// broker call RequireBroker.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxBodyBytes < 0 {
		return errors.Newf("server.max_body_bytes must be >= 0, got %d", c.Server.MaxBodyBytes)
	}
	if c.Broker.TimeoutSeconds <= 0 {
		return errors.Newf("broker.timeout_seconds must be > 0, got %d", c.Broker.TimeoutSeconds)
	}
	if c.Broker.URL != "" {
		if err := checkHTTPURL("broker.url", c.Broker.URL); err != nil {
			return err
		}
	}
	if c.Broker.DestinationURL != "" {
		if err := checkHTTPURL("broker.destination_url", c.Broker.DestinationURL); err != nil {
			return err
		}
	}
	if c.Cache.URL != "" {
		u, err := url.Parse(c.Cache.URL)
		if err != nil || (u.Scheme != "redis" && u.Scheme != "rediss" && u.Scheme != "unix") {
			// The URL may carry a password; never echo it.
			return errors.New("cache.url must be a redis://, rediss:// or unix:// URL")
		}
	}
	return nil
}

// RequireBroker checks the settings needed to publish jobs and manage
// schedules.
func (c *Config) RequireBroker() error {
	if c.Broker.Token == "" {
		return errors.WithHint(errors.New("broker.token is not set"),
			"set "+EnvVarName("broker.token")+" or broker.token in courier.toml")
	}
	if c.Broker.DestinationURL == "" {
		return errors.WithHint(errors.New("broker.destination_url is not set"),
			"set it to the public URL of this service's /jobs-webhook")
	}
	return nil
}

// RequireSigningKeys checks that webhook deliveries can be verified.
func (c *Config) RequireSigningKeys() error {
	if c.Broker.CurrentSigningKey == "" && c.Broker.NextSigningKey == "" {
		return errors.WithHint(errors.New("no broker signing keys configured"),
			"set "+EnvVarName("broker.current_signing_key")+" and "+EnvVarName("broker.next_signing_key"))
	}
	return nil
}

func checkHTTPURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrapf(err, "%s is not a valid URL", key)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Newf("%s must be an http(s) URL, got scheme %q", key, u.Scheme)
	}
	if u.Host == "" {
		return errors.Newf("%s has no host", key)
	}
	return nil
}
