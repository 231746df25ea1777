package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bschlintz/panopto-index-connector/internal/fieldmap"
)

// Required top-level keys, in reporting order.
var requiredKeys = []string{
	"panopto_site_address",
	"panopto_oauth_credentials",
	"target_address",
	"target_credentials",
	"target_implementation",
	"field_mapping",
}

// Load reads, parses and validates the configuration file at path.
func Load(path string) (ConnectorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ConnectorConfig{}, &IOError{Path: path, Err: err}
	}

	cfg, err := Parse(data)
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			parseErr.Path = path
		}
		return ConnectorConfig{}, err
	}

	return cfg, nil
}

// Parse parses and validates configuration content. Unknown top-level keys are
// rejected. Duplicate keys within any mapping level are a ParseError. A few
// secrets may be supplied through the environment instead of the file:
// PANOPTO_CLIENT_SECRET, PANOPTO_PASSWORD and TARGET_PASSWORD override their
// file counterparts when set.
func Parse(data []byte) (ConnectorConfig, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return ConnectorConfig{}, yamlParseError(err)
	}

	if doc.Kind == 0 || len(doc.Content) == 0 {
		return ConnectorConfig{}, &ParseError{Message: "empty document: expected a YAML mapping"}
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return ConnectorConfig{}, &ParseError{
			Line:    root.Line,
			Message: fmt.Sprintf("top level must be a mapping, got %s", kindName(root)),
		}
	}

	if err := checkDuplicateKeys(root); err != nil {
		return ConnectorConfig{}, err
	}

	cfg := ConnectorConfig{
		Polling: defaultPolling(),
		Logging: defaultLogging(),
		Server:  defaultServer(),
		State:   defaultState(),
	}

	seen := make(map[string]bool)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		value := root.Content[i+1]
		seen[key] = true

		var err error
		switch key {
		case "panopto_site_address":
			cfg.PanoptoSiteAddress, err = urlValue(value, key)
		case "panopto_oauth_credentials":
			cfg.PanoptoOAuthCredentials, err = parseOAuthCredentials(value)
		case "target_address":
			cfg.TargetAddress, err = urlValue(value, key)
		case "target_credentials":
			cfg.TargetCredentials, err = parseTargetCredentials(value)
		case "target_implementation":
			cfg.TargetImplementation, err = stringValue(value, key)
			if err == nil && !isSupportedImplementation(cfg.TargetImplementation) {
				err = &ValidationError{
					Key: key,
					Message: fmt.Sprintf("unknown adapter %q (supported: %s)",
						cfg.TargetImplementation, strings.Join(supportedImplementations, ", ")),
				}
			}
		case "field_mapping":
			cfg.FieldMapping, err = parseFieldMapping(value)
		case "polling":
			err = parsePollingSection(value, &cfg.Polling)
		case "logging":
			err = parseLoggingSection(value, &cfg.Logging)
		case "server":
			err = parseServerSection(value, &cfg.Server)
		case "state":
			err = parseStateSection(value, &cfg.State)
		default:
			err = &ValidationError{Key: key, Message: "unknown key"}
		}
		if err != nil {
			return ConnectorConfig{}, err
		}
	}

	for _, key := range requiredKeys {
		if !seen[key] {
			return ConnectorConfig{}, &ValidationError{Key: key, Message: "required key is missing"}
		}
	}

	applyEnvOverrides(&cfg)

	// Non-empty checks run after env overrides so secrets can live outside
	// the file.
	oauth := cfg.PanoptoOAuthCredentials
	for key, value := range map[string]string{
		"panopto_oauth_credentials.client_id":     oauth.ClientID,
		"panopto_oauth_credentials.client_secret": oauth.ClientSecret,
		"panopto_oauth_credentials.grant_type":    oauth.GrantType,
	} {
		if value == "" {
			return ConnectorConfig{}, &ValidationError{Key: key, Message: "must not be empty"}
		}
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *ConnectorConfig) {
	if v := os.Getenv("PANOPTO_CLIENT_SECRET"); v != "" {
		cfg.PanoptoOAuthCredentials.ClientSecret = v
	}
	if v := os.Getenv("PANOPTO_PASSWORD"); v != "" {
		cfg.PanoptoOAuthCredentials.Password = v
	}
	if v := os.Getenv("TARGET_PASSWORD"); v != "" {
		cfg.TargetCredentials.Password = v
	}
}

// checkDuplicateKeys walks every mapping node and rejects repeated keys within
// one nesting level. Repeats are reported as a ParseError rather than silently
// applying last-write-wins.
func checkDuplicateKeys(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		seen := make(map[string]bool)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i]
			if seen[key.Value] {
				return &ParseError{
					Line:    key.Line,
					Message: fmt.Sprintf("duplicate key %q", key.Value),
				}
			}
			seen[key.Value] = true
			if err := checkDuplicateKeys(node.Content[i+1]); err != nil {
				return err
			}
		}
	case yaml.SequenceNode, yaml.DocumentNode:
		for _, child := range node.Content {
			if err := checkDuplicateKeys(child); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseOAuthCredentials(node *yaml.Node) (OAuthCredentials, error) {
	fields, err := parseStringRecord(node, "panopto_oauth_credentials",
		[]string{"username", "password", "client_id", "client_secret", "grant_type"})
	if err != nil {
		return OAuthCredentials{}, err
	}

	return OAuthCredentials{
		Username:     fields["username"],
		Password:     fields["password"],
		ClientID:     fields["client_id"],
		ClientSecret: fields["client_secret"],
		GrantType:    fields["grant_type"],
	}, nil
}

func parseTargetCredentials(node *yaml.Node) (TargetCredentials, error) {
	fields, err := parseStringRecord(node, "target_credentials", []string{"username", "password"})
	if err != nil {
		return TargetCredentials{}, err
	}

	return TargetCredentials{
		Username: fields["username"],
		Password: fields["password"],
	}, nil
}

// parseStringRecord decodes a mapping of known string keys. Every key in keys
// must be present; keys outside the set are rejected.
func parseStringRecord(node *yaml.Node, path string, keys []string) (map[string]string, error) {
	if node.Kind != yaml.MappingNode {
		return nil, &ValidationError{
			Key:     path,
			Message: fmt.Sprintf("must be a mapping, got %s", kindName(node)),
		}
	}

	allowed := make(map[string]bool, len(keys))
	for _, k := range keys {
		allowed[k] = true
	}

	out := make(map[string]string, len(keys))
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		full := path + "." + key
		if !allowed[key] {
			return nil, &ValidationError{Key: full, Message: "unknown key"}
		}
		value, err := stringValue(node.Content[i+1], full)
		if err != nil {
			return nil, err
		}
		out[key] = value
	}

	for _, k := range keys {
		if _, ok := out[k]; !ok {
			return nil, &ValidationError{Key: path + "." + k, Message: "required key is missing"}
		}
	}

	return out, nil
}

func parseFieldMapping(node *yaml.Node) (*fieldmap.Mapping, error) {
	mapping := fieldmap.New()

	// An explicit null (bare "field_mapping:") is an empty mapping.
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return mapping, nil
	}

	if err := fillFieldMapping(mapping, node, "field_mapping"); err != nil {
		return nil, err
	}
	return mapping, nil
}

func fillFieldMapping(dst *fieldmap.Mapping, node *yaml.Node, path string) error {
	if node.Kind != yaml.MappingNode {
		return &ValidationError{
			Key:     path,
			Message: fmt.Sprintf("must be a mapping of source fields to destination names, got %s", kindName(node)),
		}
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value := node.Content[i+1]
		full := path + "." + key

		switch value.Kind {
		case yaml.ScalarNode:
			dest, err := stringValue(value, full)
			if err != nil {
				return err
			}
			if dest == "" {
				return &ValidationError{Key: full, Message: "destination field name must not be empty"}
			}
			dst.SetField(key, dest)
		case yaml.MappingNode:
			if err := fillFieldMapping(dst.SetGroup(key), value, full); err != nil {
				return err
			}
		default:
			return &ValidationError{
				Key:     full,
				Message: fmt.Sprintf("must be a destination name or a nested mapping, got %s", kindName(value)),
			}
		}
	}

	return nil
}

func parsePollingSection(node *yaml.Node, cfg *PollingConfig) error {
	if node.Kind != yaml.MappingNode {
		return &ValidationError{Key: "polling", Message: fmt.Sprintf("must be a mapping, got %s", kindName(node))}
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value := node.Content[i+1]
		full := "polling." + key

		var err error
		switch key {
		case "frequency":
			cfg.Frequency, err = durationValue(value, full)
		case "retry_minimum":
			cfg.RetryMinimum, err = durationValue(value, full)
		case "item_throttle":
			cfg.ItemThrottle, err = durationValue(value, full)
		case "page_limit":
			cfg.PageLimit, err = intValue(value, full)
			if err == nil && cfg.PageLimit <= 0 {
				err = &ValidationError{Key: full, Message: "must be a positive integer"}
			}
		default:
			err = &ValidationError{Key: full, Message: "unknown key"}
		}
		if err != nil {
			return err
		}
	}

	return nil
}

func parseLoggingSection(node *yaml.Node, cfg *LoggingConfig) error {
	if node.Kind != yaml.MappingNode {
		return &ValidationError{Key: "logging", Message: fmt.Sprintf("must be a mapping, got %s", kindName(node))}
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value := node.Content[i+1]
		full := "logging." + key

		switch key {
		case "level":
			raw, err := stringValue(value, full)
			if err != nil {
				return err
			}
			level, err := parseLogLevel(raw)
			if err != nil {
				return &ValidationError{Key: full, Message: err.Error()}
			}
			cfg.Level = level
		case "format":
			format, err := stringValue(value, full)
			if err != nil {
				return err
			}
			if format != "json" && format != "text" {
				return &ValidationError{Key: full, Message: "must be 'json' or 'text'"}
			}
			cfg.Format = format
		default:
			return &ValidationError{Key: full, Message: "unknown key"}
		}
	}

	return nil
}

func parseServerSection(node *yaml.Node, cfg *ServerConfig) error {
	if node.Kind != yaml.MappingNode {
		return &ValidationError{Key: "server", Message: fmt.Sprintf("must be a mapping, got %s", kindName(node))}
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value := node.Content[i+1]
		full := "server." + key

		var err error
		switch key {
		case "port":
			// Ports are often written unquoted; accept any scalar.
			if value.Kind != yaml.ScalarNode {
				err = &ValidationError{Key: full, Message: fmt.Sprintf("expected a port, got %s", kindName(value))}
			} else {
				cfg.Port = value.Value
			}
		case "read_timeout":
			cfg.ReadTimeout, err = durationValue(value, full)
		case "write_timeout":
			cfg.WriteTimeout, err = durationValue(value, full)
		case "shutdown_timeout":
			cfg.ShutdownTimeout, err = durationValue(value, full)
		default:
			err = &ValidationError{Key: full, Message: "unknown key"}
		}
		if err != nil {
			return err
		}
	}

	return nil
}

func parseStateSection(node *yaml.Node, cfg *StateConfig) error {
	if node.Kind != yaml.MappingNode {
		return &ValidationError{Key: "state", Message: fmt.Sprintf("must be a mapping, got %s", kindName(node))}
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value := node.Content[i+1]
		full := "state." + key

		var err error
		switch key {
		case "backend":
			cfg.Backend, err = stringValue(value, full)
			if err == nil && cfg.Backend != StateBackendFile && cfg.Backend != StateBackendPostgres {
				err = &ValidationError{Key: full, Message: "must be 'file' or 'postgres'"}
			}
		case "path":
			cfg.Path, err = stringValue(value, full)
		case "dsn":
			cfg.DSN, err = stringValue(value, full)
		default:
			err = &ValidationError{Key: full, Message: "unknown key"}
		}
		if err != nil {
			return err
		}
	}

	if cfg.Backend == StateBackendPostgres && cfg.DSN == "" {
		return &ValidationError{Key: "state.dsn", Message: "required for the postgres backend"}
	}

	return nil
}

func stringValue(node *yaml.Node, key string) (string, error) {
	if node.Kind != yaml.ScalarNode {
		return "", &ValidationError{
			Key:     key,
			Message: fmt.Sprintf("expected a string, got %s", kindName(node)),
		}
	}

	var s string
	if err := node.Decode(&s); err != nil {
		return "", &ValidationError{
			Key:     key,
			Message: fmt.Sprintf("expected a string, got %s value %q", node.Tag, node.Value),
		}
	}
	return s, nil
}

func urlValue(node *yaml.Node, key string) (string, error) {
	raw, err := stringValue(node, key)
	if err != nil {
		return "", err
	}
	if raw == "" {
		return "", &ValidationError{Key: key, Message: "must not be empty"}
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", &ValidationError{Key: key, Message: fmt.Sprintf("must be a valid http(s) URL, got %q", raw)}
	}

	return raw, nil
}

func durationValue(node *yaml.Node, key string) (time.Duration, error) {
	raw, err := stringValue(node, key)
	if err != nil {
		return 0, err
	}

	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, &ValidationError{Key: key, Message: fmt.Sprintf("must be a non-negative duration (e.g. \"10m\"), got %q", raw)}
	}
	return d, nil
}

func intValue(node *yaml.Node, key string) (int, error) {
	if node.Kind != yaml.ScalarNode {
		return 0, &ValidationError{Key: key, Message: fmt.Sprintf("expected an integer, got %s", kindName(node))}
	}

	var n int
	if err := node.Decode(&n); err != nil {
		return 0, &ValidationError{Key: key, Message: fmt.Sprintf("expected an integer, got %q", node.Value)}
	}
	return n, nil
}

func kindName(node *yaml.Node) string {
	switch node.Kind {
	case yaml.MappingNode:
		return "a mapping"
	case yaml.SequenceNode:
		return "a sequence"
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return "null"
		}
		return fmt.Sprintf("a %s scalar", strings.TrimPrefix(node.Tag, "!!"))
	case yaml.AliasNode:
		return "an alias"
	default:
		return "an unknown node"
	}
}

// yamlParseError converts a yaml.v3 error, extracting the line number the
// library embeds in its message when available.
func yamlParseError(err error) *ParseError {
	parseErr := &ParseError{Message: err.Error()}

	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		parseErr.Message = strings.Join(typeErr.Errors, "; ")
	}

	if strings.Contains(err.Error(), "yaml: line ") {
		var line int
		if _, scanErr := fmt.Sscanf(err.Error(), "yaml: line %d:", &line); scanErr == nil {
			parseErr.Line = line
		}
	}

	return parseErr
}
