// Package config loads storage bindings and exposes typed accessors over
// their untyped property maps.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ruteri/content-service-backend/interfaces"
	"gopkg.in/yaml.v3"
)

// bindingsFile is the on-disk layout of the bindings file.
//
//	bindings:
//	  - tag: local
//	    providerType: filesystem
//	    properties:
//	      rootDirectory: /data
type bindingsFile struct {
	Bindings []interfaces.StorageBinding `yaml:"bindings"`
}

// LoadBindings reads bindings from a YAML file.
func LoadBindings(path string) ([]interfaces.StorageBinding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read bindings file %s: %v", interfaces.ErrConfiguration, path, err)
	}
	return ParseBindings(bytes.NewReader(data))
}

// ParseBindings decodes and validates an ordered binding list. Tags must be
// unique and non-empty and every binding needs a provider type.
func ParseBindings(r io.Reader) ([]interfaces.StorageBinding, error) {
	var file bindingsFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: invalid bindings: %v", interfaces.ErrConfiguration, err)
	}

	seen := make(map[string]struct{}, len(file.Bindings))
	for i, b := range file.Bindings {
		if b.Tag == "" {
			return nil, fmt.Errorf("%w: binding %d has no tag", interfaces.ErrConfiguration, i)
		}
		if b.ProviderType == "" {
			return nil, fmt.Errorf("%w: binding %q has no providerType", interfaces.ErrConfiguration, b.Tag)
		}
		if _, dup := seen[b.Tag]; dup {
			return nil, fmt.Errorf("%w: duplicate binding tag %q", interfaces.ErrConfiguration, b.Tag)
		}
		seen[b.Tag] = struct{}{}
		if b.Properties == nil {
			file.Bindings[i].Properties = map[string]any{}
		}
	}
	return file.Bindings, nil
}

// RequiredString returns a non-empty string property.
func RequiredString(b interfaces.StorageBinding, key string) (string, error) {
	s, ok, err := lookupString(b, key)
	if err != nil {
		return "", err
	}
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: binding %q requires property %q", interfaces.ErrConfiguration, b.Tag, key)
	}
	return s, nil
}

// OptionalString returns the string property or def when absent.
func OptionalString(b interfaces.StorageBinding, key, def string) (string, error) {
	s, ok, err := lookupString(b, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return def, nil
	}
	return s, nil
}

// OptionalBool accepts booleans and their string forms.
func OptionalBool(b interfaces.StorageBinding, key string, def bool) (bool, error) {
	raw, ok := b.Properties[key]
	if !ok || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return false, malformed(b, key, raw)
		}
		return parsed, nil
	default:
		return false, malformed(b, key, raw)
	}
}

// OptionalDuration accepts duration strings ("30s") and integer seconds.
func OptionalDuration(b interfaces.StorageBinding, key string, def time.Duration) (time.Duration, error) {
	raw, ok := b.Properties[key]
	if !ok || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, malformed(b, key, raw)
		}
		return d, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	default:
		return 0, malformed(b, key, raw)
	}
}

func lookupString(b interfaces.StorageBinding, key string) (string, bool, error) {
	raw, ok := b.Properties[key]
	if !ok || raw == nil {
		return "", false, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", false, malformed(b, key, raw)
	}
	return s, true, nil
}

func malformed(b interfaces.StorageBinding, key string, raw any) error {
	return fmt.Errorf("%w: binding %q property %q has invalid value %v", interfaces.ErrConfiguration, b.Tag, key, raw)
}
