package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// SaveOutcomes updates the outcomes section in the config file.
// This preserves comments and formatting in other sections by using yaml.Node.
func SaveOutcomes(configPath string, outcomes OutcomesConfig) error {
	node, err := buildOutcomesNode(outcomes)
	if err != nil {
		return fmt.Errorf("building outcomes node: %w", err)
	}
	return saveSection(configPath, "outcomes", node)
}

// SaveCustomFields updates the custom_fields section in the config file.
// This preserves comments and formatting in other sections by using yaml.Node.
func SaveCustomFields(configPath string, fields map[string][]CustomFieldConfig) error {
	node, err := buildCustomFieldsNode(fields)
	if err != nil {
		return fmt.Errorf("building custom fields node: %w", err)
	}
	return saveSection(configPath, "custom_fields", node)
}

// saveSection replaces (or appends) one top-level key in the config file,
// leaving every other section untouched.
func saveSection(configPath, key string, value *yaml.Node) error {
	// Read existing file content
	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	// Parse into yaml.Node to preserve comments
	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	// Update or create the section
	if doc.Kind == 0 {
		// Empty or new file - create document structure
		doc = yaml.Node{
			Kind: yaml.DocumentNode,
			Content: []*yaml.Node{
				{
					Kind: yaml.MappingNode,
					Content: []*yaml.Node{
						{Kind: yaml.ScalarNode, Value: key},
						value,
					},
				},
			},
		}
	} else if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		root := doc.Content[0]
		if root.Kind == yaml.MappingNode {
			// Find and replace the key, or append it
			found := false
			for i := 0; i < len(root.Content)-1; i += 2 {
				if root.Content[i].Value == key {
					root.Content[i+1] = value
					found = true
					break
				}
			}
			if !found {
				root.Content = append(root.Content,
					&yaml.Node{Kind: yaml.ScalarNode, Value: key},
					value,
				)
			}
		}
	}

	// Marshal back to YAML
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	// Write atomically (write to temp, then rename)
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".testledger.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(buf.Bytes()); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, configPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}

// buildOutcomesNode creates a yaml.Node representing the outcomes section.
func buildOutcomesNode(outcomes OutcomesConfig) (*yaml.Node, error) {
	statuses := &yaml.Node{
		Kind:    yaml.SequenceNode,
		Content: make([]*yaml.Node, 0, len(outcomes.Statuses)),
	}

	for _, s := range outcomes.Statuses {
		entry := &yaml.Node{
			Kind: yaml.MappingNode,
			Content: []*yaml.Node{
				{Kind: yaml.ScalarNode, Value: "name"},
				{Kind: yaml.ScalarNode, Value: s.Name},
				{Kind: yaml.ScalarNode, Value: "caption"},
				{Kind: yaml.ScalarNode, Value: s.Caption},
				{Kind: yaml.ScalarNode, Value: "color"},
				{Kind: yaml.ScalarNode, Value: s.Color},
			},
		}
		statuses.Content = append(statuses.Content, entry)
	}

	return &yaml.Node{
		Kind: yaml.MappingNode,
		Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: "default"},
			{Kind: yaml.ScalarNode, Value: outcomes.Default},
			{Kind: yaml.ScalarNode, Value: "statuses"},
			statuses,
		},
	}, nil
}

// buildCustomFieldsNode creates a yaml.Node representing the custom_fields map.
func buildCustomFieldsNode(fields map[string][]CustomFieldConfig) (*yaml.Node, error) {
	node := &yaml.Node{
		Kind:    yaml.MappingNode,
		Content: make([]*yaml.Node, 0, len(fields)*2),
	}

	// Deterministic realm order keeps diffs stable
	realms := make([]string, 0, len(fields))
	for realm := range fields {
		realms = append(realms, realm)
	}
	sort.Strings(realms)

	for _, realm := range realms {
		decls := &yaml.Node{
			Kind:    yaml.SequenceNode,
			Content: make([]*yaml.Node, 0, len(fields[realm])),
		}
		for _, f := range fields[realm] {
			entry := &yaml.Node{
				Kind: yaml.MappingNode,
				Content: []*yaml.Node{
					{Kind: yaml.ScalarNode, Value: "name"},
					{Kind: yaml.ScalarNode, Value: f.Name},
				},
			}
			if f.Type != "" {
				entry.Content = append(entry.Content,
					&yaml.Node{Kind: yaml.ScalarNode, Value: "type"},
					&yaml.Node{Kind: yaml.ScalarNode, Value: f.Type},
				)
			}
			if f.Label != "" {
				entry.Content = append(entry.Content,
					&yaml.Node{Kind: yaml.ScalarNode, Value: "label"},
					&yaml.Node{Kind: yaml.ScalarNode, Value: f.Label},
				)
			}
			if len(f.Options) > 0 {
				opts := &yaml.Node{Kind: yaml.SequenceNode}
				for _, o := range f.Options {
					opts.Content = append(opts.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: o})
				}
				entry.Content = append(entry.Content,
					&yaml.Node{Kind: yaml.ScalarNode, Value: "options"},
					opts,
				)
			}
			if f.Value != "" {
				entry.Content = append(entry.Content,
					&yaml.Node{Kind: yaml.ScalarNode, Value: "value"},
					&yaml.Node{Kind: yaml.ScalarNode, Value: f.Value},
				)
			}
			decls.Content = append(decls.Content, entry)
		}

		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: realm},
			decls,
		)
	}

	return node, nil
}
