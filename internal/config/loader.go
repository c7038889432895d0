package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads path, resolves any Hydra-style `defaults:` imports
// (relative to path's directory), deep-merges them with the current
// file winning on conflicts, and decodes the result into a
// ClearedConfig. Line positions and raw source lines are recorded
// against path itself, so lint diagnostics and `disable-line` comments
// refer to the file the caller actually pointed at.
func Load(path string) (*ClearedConfig, error) {
	raw, node, err := readYAMLFile(path)
	if err != nil {
		return nil, err
	}

	merged, err := mergeDefaults(raw, filepath.Dir(path), map[string]bool{absPath(path): true})
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}

	data, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("re-marshal merged config: %w", err)
	}
	var cfg ClearedConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode merged config: %w", err)
	}

	cfg.LinePositions = linePositions(node)
	if src, err := os.ReadFile(path); err == nil {
		cfg.SourceLines = strings.Split(string(src), "\n")
	}
	for name, t := range cfg.Tables {
		t.Name = name
		if line, ok := cfg.LinePositions["tables."+name]; ok {
			t.Line = line
		}
		for i := range t.Transformers {
			key := fmt.Sprintf("tables.%s.transformers.%d", name, i)
			if line, ok := cfg.LinePositions[key]; ok {
				t.Transformers[i].Line = line
			}
		}
		cfg.Tables[name] = t
	}

	return &cfg, nil
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func readYAMLFile(path string) (map[string]any, *yaml.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read %q: %w", path, err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse yaml %q: %w", path, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("parse yaml %q: %w", path, err)
	}
	return raw, &doc, nil
}

// mergeDefaults implements Hydra-style `defaults:` resolution: each
// name in the defaults list is loaded as `<dir>/<name>.yaml`,
// merged deepest-import-first, then the current file's own keys (minus
// `defaults` itself) are merged on top, so the current file always
// wins a conflict. visited guards against a defaults cycle.
func mergeDefaults(raw map[string]any, dir string, visited map[string]bool) (map[string]any, error) {
	defaultsRaw, hasDefaults := raw["defaults"]
	if !hasDefaults {
		return raw, nil
	}
	names, ok := defaultsRaw.([]any)
	if !ok {
		return nil, fmt.Errorf("defaults: expected a list")
	}

	merged := map[string]any{}
	for _, n := range names {
		name, ok := n.(string)
		if !ok {
			return nil, fmt.Errorf("defaults: expected string entries, got %v", n)
		}
		importPath := filepath.Join(dir, name+".yaml")
		key := absPath(importPath)
		if visited[key] {
			return nil, fmt.Errorf("circular defaults import at %q", importPath)
		}
		if _, err := os.Stat(importPath); err != nil {
			return nil, fmt.Errorf("defaults: import %q not found", importPath)
		}

		importRaw, _, err := readYAMLFile(importPath)
		if err != nil {
			return nil, err
		}
		visited[key] = true
		resolvedImport, err := mergeDefaults(importRaw, filepath.Dir(importPath), visited)
		if err != nil {
			return nil, err
		}
		delete(visited, key)

		delete(resolvedImport, "defaults")
		merged = deepMerge(merged, resolvedImport)
	}

	own := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == "defaults" {
			continue
		}
		own[k] = v
	}
	return deepMerge(merged, own), nil
}

// deepMerge merges b onto a, b winning scalar/slice conflicts; nested
// maps are merged recursively rather than replaced wholesale.
func deepMerge(a, b map[string]any) map[string]any {
	result := make(map[string]any, len(a))
	for k, v := range a {
		result[k] = v
	}
	for k, v := range b {
		if existing, ok := result[k]; ok {
			existingMap, existingIsMap := existing.(map[string]any)
			valueMap, valueIsMap := v.(map[string]any)
			if existingIsMap && valueIsMap {
				result[k] = deepMerge(existingMap, valueMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// linePositions walks doc collecting the source line of every
// `tables.<name>` mapping and every `tables.<name>.transformers.<i>`
// entry, keyed the way Load's caller looks them up.
func linePositions(doc *yaml.Node) map[string]int {
	positions := map[string]int{}
	if doc == nil || len(doc.Content) == 0 {
		return positions
	}
	root := doc.Content[0]
	tablesNode := mappingValue(root, "tables")
	if tablesNode == nil || tablesNode.Kind != yaml.MappingNode {
		return positions
	}
	for i := 0; i+1 < len(tablesNode.Content); i += 2 {
		nameNode := tablesNode.Content[i]
		tableNode := tablesNode.Content[i+1]
		positions["tables."+nameNode.Value] = tableNode.Line

		transformersNode := mappingValue(tableNode, "transformers")
		if transformersNode == nil || transformersNode.Kind != yaml.SequenceNode {
			continue
		}
		for idx, item := range transformersNode.Content {
			positions[fmt.Sprintf("tables.%s.transformers.%d", nameNode.Value, idx)] = item.Line
		}
	}
	return positions
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}
