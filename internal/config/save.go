package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bschlintz/panopto-index-connector/internal/fieldmap"
)

// fileConfig mirrors the on-disk layout for serialization. Optional sections
// are written with their resolved values so a saved file reloads to the exact
// same configuration.
type fileConfig struct {
	PanoptoSiteAddress      string            `yaml:"panopto_site_address"`
	PanoptoOAuthCredentials oauthYAML         `yaml:"panopto_oauth_credentials"`
	TargetAddress           string            `yaml:"target_address"`
	TargetCredentials       credentialsYAML   `yaml:"target_credentials"`
	TargetImplementation    string            `yaml:"target_implementation"`
	FieldMapping            *fieldmap.Mapping `yaml:"field_mapping"`
	Polling                 pollingYAML       `yaml:"polling"`
	Logging                 loggingYAML       `yaml:"logging"`
	Server                  serverYAML        `yaml:"server"`
	State                   stateYAML         `yaml:"state"`
}

type oauthYAML struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	GrantType    string `yaml:"grant_type"`
}

type credentialsYAML struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type pollingYAML struct {
	Frequency    string `yaml:"frequency"`
	RetryMinimum string `yaml:"retry_minimum"`
	ItemThrottle string `yaml:"item_throttle"`
	PageLimit    int    `yaml:"page_limit"`
}

type loggingYAML struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type serverYAML struct {
	Port            string `yaml:"port"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

type stateYAML struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path,omitempty"`
	DSN     string `yaml:"dsn,omitempty"`
}

// Marshal serializes the configuration back to YAML. Parsing the result
// yields a configuration equal to the receiver.
func (c ConnectorConfig) Marshal() ([]byte, error) {
	fc := fileConfig{
		PanoptoSiteAddress: c.PanoptoSiteAddress,
		PanoptoOAuthCredentials: oauthYAML{
			Username:     c.PanoptoOAuthCredentials.Username,
			Password:     c.PanoptoOAuthCredentials.Password,
			ClientID:     c.PanoptoOAuthCredentials.ClientID,
			ClientSecret: c.PanoptoOAuthCredentials.ClientSecret,
			GrantType:    c.PanoptoOAuthCredentials.GrantType,
		},
		TargetAddress: c.TargetAddress,
		TargetCredentials: credentialsYAML{
			Username: c.TargetCredentials.Username,
			Password: c.TargetCredentials.Password,
		},
		TargetImplementation: c.TargetImplementation,
		FieldMapping:         c.FieldMapping,
		Polling: pollingYAML{
			Frequency:    c.Polling.Frequency.String(),
			RetryMinimum: c.Polling.RetryMinimum.String(),
			ItemThrottle: c.Polling.ItemThrottle.String(),
			PageLimit:    c.Polling.PageLimit,
		},
		Logging: loggingYAML{
			Level:  logLevelName(c.Logging.Level),
			Format: c.Logging.Format,
		},
		Server: serverYAML{
			Port:            c.Server.Port,
			ReadTimeout:     c.Server.ReadTimeout.String(),
			WriteTimeout:    c.Server.WriteTimeout.String(),
			ShutdownTimeout: c.Server.ShutdownTimeout.String(),
		},
		State: stateYAML{
			Backend: c.State.Backend,
			Path:    c.State.Path,
			DSN:     c.State.DSN,
		},
	}

	data, err := yaml.Marshal(&fc)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// Save writes the serialized configuration to path. The file is created with
// owner-only permissions since it carries credentials.
func (c ConnectorConfig) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
