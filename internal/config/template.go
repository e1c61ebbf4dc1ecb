package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnresolvedReference is returned when a {key} reference names no top-level scalar key.
var ErrUnresolvedReference = errors.New("unresolved reference")

// templatePattern matches escaped braces and {key} references.
var templatePattern = regexp.MustCompile(`\{\{|\}\}|\{([^{}]*)\}`)

// resolveTemplates replaces {key} references in top-level string values with
// the raw value of the referenced top-level scalar. Resolution is a single
// pass over the unresolved values, so references are not followed
// transitively. {{ and }} produce literal braces.
func resolveTemplates(document *yaml.Node) error {
	if document.Kind != yaml.DocumentNode || len(document.Content) == 0 {
		return nil
	}

	root := document.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil
	}

	scalars := make(map[string]string, len(root.Content)/2)

	for i := 0; i+1 < len(root.Content); i += 2 {
		if value := root.Content[i+1]; value.Kind == yaml.ScalarNode {
			scalars[root.Content[i].Value] = value.Value
		}
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i].Value, root.Content[i+1]
		if value.Kind != yaml.ScalarNode || value.ShortTag() != "!!str" || !strings.ContainsAny(value.Value, "{}") {
			continue
		}

		resolved, err := resolveValue(value.Value, scalars)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}

		if resolved == value.Value {
			continue
		}

		// Let YAML infer the type of the resolved text, e.g. "{port}" -> 1883.
		value.Value = resolved
		value.Tag = ""
		value.Style = 0
	}

	return nil
}

// resolveValue expands every reference of a single value.
func resolveValue(value string, scalars map[string]string) (string, error) {
	var unresolved error

	resolved := templatePattern.ReplaceAllStringFunc(value, func(match string) string {
		switch match {
		case "{{":
			return "{"
		case "}}":
			return "}"
		}

		name := strings.TrimSpace(match[1 : len(match)-1])

		replacement, found := scalars[name]
		if !found && unresolved == nil {
			unresolved = fmt.Errorf("{%s}: %w", name, ErrUnresolvedReference)
		}

		return replacement
	})

	if unresolved != nil {
		return "", unresolved
	}

	return resolved, nil
}
