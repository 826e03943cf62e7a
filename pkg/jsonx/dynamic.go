// Package jsonx converts Go values into the loosely typed JSON shapes SDKs expect.
package jsonx

import "github.com/goccy/go-json"

// ToDynamicJSON converts any Go value to a map[string]any by round tripping it through JSON.
func ToDynamicJSON(val any) (map[string]any, error) {
	result := make(map[string]any)
	b, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	if err = json.Unmarshal(b, &result); err != nil {
		return nil, err
	}
	return result, nil
}
