package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// decodeInto overlays the file contents on cfg. YAML is first turned into
// JSON so both formats go through the same strict decoder, which knows the
// json tags and rejects unknown keys. An empty document leaves cfg as is.
func decodeInto(cfg *Config, path string, raw []byte) error {
	doc := raw
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		var tree any
		if err := yaml.Unmarshal(raw, &tree); err != nil {
			return fmt.Errorf("yaml: %w", err)
		}
		if tree == nil {
			return nil
		}
		var err error
		if doc, err = json.Marshal(jsonCompatible(tree)); err != nil {
			return fmt.Errorf("yaml: %w", err)
		}
	}
	doc = bytes.TrimSpace(doc)
	if len(doc) == 0 || string(doc) == "null" {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected content after the config document")
	}
	return nil
}

// jsonCompatible rewrites YAML mappings with non-string keys (`1: x`) into
// string-keyed maps encoding/json accepts.
func jsonCompatible(node any) any {
	switch n := node.(type) {
	case map[string]any:
		for k, v := range n {
			n[k] = jsonCompatible(v)
		}
		return n
	case map[any]any:
		out := make(map[string]any, len(n))
		for k, v := range n {
			out[fmt.Sprint(k)] = jsonCompatible(v)
		}
		return out
	case []any:
		for i, v := range n {
			n[i] = jsonCompatible(v)
		}
		return n
	}
	return node
}
