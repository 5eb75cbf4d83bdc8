package am

import (
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/teranos/courier/errors"
)

const maskedValue = "********"

// Redacted returns a copy of c with every secret masked.
func (c Config) Redacted() Config {
	c.Server.AdminToken = maskSecret(c.Server.AdminToken)
	c.Cache.URL = maskSecret(c.Cache.URL)
	c.Broker.Token = maskSecret(c.Broker.Token)
	c.Broker.CurrentSigningKey = maskSecret(c.Broker.CurrentSigningKey)
	c.Broker.NextSigningKey = maskSecret(c.Broker.NextSigningKey)
	return c
}

// MarshalTOML renders c as a TOML document in the layout of courier.toml.
func MarshalTOML(c Config) ([]byte, error) {
	out, err := toml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "encode config as TOML")
	}
	return out, nil
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return maskedValue
}

// MarshalYAML renders c as YAML using the same key names as the TOML file.
func MarshalYAML(c Config) ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "encode config as YAML")
	}
	return out, nil
}
