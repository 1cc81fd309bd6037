package yaml

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAML decodes the file at path into target. Unknown keys are rejected so that a
// misspelled setting fails loudly instead of being ignored. A missing file is reported
// with an error matching os.ErrNotExist.
func LoadYAML(path string, target interface{}) error {
	if path == "" {
		return fmt.Errorf("yaml path cannot be empty")
	}
	if target == nil {
		return fmt.Errorf("target cannot be nil")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read yaml file %s: %w", path, err)
	}
	if err := Decode(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal yaml file %s: %w", path, err)
	}
	return nil
}

// Decode strictly unmarshals a YAML document. An empty document leaves target untouched.
func Decode(data []byte, target interface{}) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
