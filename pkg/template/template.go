// Package template renders skill and tool configuration values against run
// data, so a node config can reference upstream inputs without hardcoding.
package template

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// Render evaluates templateStr against data. The rendered text is coerced
// back into JSON, number, or bool when it parses as one, so templated config
// values keep their types.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("config").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"env": os.Getenv,
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		if err := json.Unmarshal([]byte(result), &jsonResult); err == nil {
			return jsonResult, nil
		}
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// RenderConfig renders every string value in config, recursing into nested
// maps and slices. Strings without template actions pass through unchanged.
func RenderConfig(config map[string]any, data any) (map[string]any, error) {
	rendered := make(map[string]any, len(config))

	for key, value := range config {
		out, err := renderValue(value, data)
		if err != nil {
			return nil, fmt.Errorf("config key '%s': %w", key, err)
		}

		rendered[key] = out
	}

	return rendered, nil
}

func renderValue(value, data any) (any, error) {
	switch v := value.(type) {
	case string:
		if !strings.Contains(v, "{{") {
			return v, nil
		}

		return Render(v, data)
	case map[string]any:
		return RenderConfig(v, data)
	case []any:
		rendered := make([]any, len(v))

		for i, item := range v {
			out, err := renderValue(item, data)
			if err != nil {
				return nil, err
			}

			rendered[i] = out
		}

		return rendered, nil
	default:
		return value, nil
	}
}
