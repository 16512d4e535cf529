package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# omnifs Configuration File
#
# Every storage below is served under its protocol scheme, so a storage with
# protocol "s3" answers URLs like s3://reports/q3.csv.
#
# Values can be overridden with OMNIFS_* environment variables
# (e.g. OMNIFS_LOGGING_LEVEL=DEBUG).
`

var sectionComments = map[string]string{
	"logging":  "Logging: level DEBUG|INFO|WARN|ERROR, format text|json, output stdout|stderr|<file>",
	"metrics":  "Prometheus metrics served on http://<host>:<port>/metrics",
	"stream":   "Stream bridge: temp_dir holds the local copies of handles opened for writing",
	"storages": "Storages: type local|s3|gcs|badger. options are type specific, stream tunes the protocol\n(ignore_visibility_errors, emulate_directory_last_modified, uid, gid, write_buffer_size,\nvisibility_file_public, visibility_file_private, visibility_directory_public,\nvisibility_directory_private, visibility_default_for_directories)\nrate_limit caps backend requests (requests_per_second, burst)",
}

// InitConfig writes a sample configuration to the default location and
// returns its path. An existing file is only replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateYAMLWithComments renders cfg with a file header and a comment on
// every top-level section.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	// Mapping content alternates key and value nodes
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i]
		if comment, ok := sectionComments[key.Value]; ok {
			key.HeadComment = comment
		}
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	buf.WriteString("\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	return buf.String(), nil
}
