// Package match implements criterion evaluation and weighted scenario
// matching against entity records.
package match

import (
	"strings"
)

// PathSeparator splits dotted field paths, e.g. "portfolio.total_value".
const PathSeparator = "."

// Resolve walks a dotted path through a nested attribute tree.
// It returns (nil, false) when any segment is missing or a non-map value
// is reached before the final segment. Absence is data, not an error:
// downstream evaluation treats it as "criterion cannot match".
func Resolve(record map[string]interface{}, path string) (interface{}, bool) {
	if record == nil || path == "" {
		return nil, false
	}

	var current interface{} = record

	for _, segment := range strings.Split(path, PathSeparator) {
		node, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// asMap normalizes the map shapes produced by the JSON and YAML decoders.
func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		// yaml.v2 decodes nested mappings with interface{} keys
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = val
		}
		return out, true
	}
	return nil, false
}
