package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skillweave/skillweave/pkg/models"
)

// RegisterBuiltins installs the free built-in skills. They report no usage,
// so the credit meter never bills them. File access is confined to root.
func RegisterBuiltins(r *Registry, root string) {
	r.RegisterSkill(SkillDefinition{
		Name: "get_time",
		Factory: func(_ map[string]any) (Skill, error) {
			return skillFunc(func(_ context.Context, _ map[string]any) (map[string]any, *models.UsageReport, error) {
				return map[string]any{"time": time.Now().UTC().Format(time.RFC3339)}, nil, nil
			}), nil
		},
	})

	r.RegisterSkill(SkillDefinition{
		Name: "read_file",
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string"},
			},
		},
		Factory: func(config map[string]any) (Skill, error) {
			return skillFunc(func(_ context.Context, inputs map[string]any) (map[string]any, *models.UsageReport, error) {
				path, err := resolvePath(root, config, inputs)
				if err != nil {
					return nil, nil, err
				}

				content, err := os.ReadFile(path)
				if err != nil {
					return nil, nil, fmt.Errorf("failed to read file: %w", err)
				}

				return map[string]any{"content": string(content)}, nil, nil
			}), nil
		},
	})

	r.RegisterSkill(SkillDefinition{
		Name:         "http_request",
		ConfigSchema: httpRequestSchema,
		Factory:      newHTTPRequestSkill,
	})

	r.RegisterSkill(SkillDefinition{
		Name: "list_files",
		Factory: func(config map[string]any) (Skill, error) {
			return skillFunc(func(_ context.Context, inputs map[string]any) (map[string]any, *models.UsageReport, error) {
				path, err := resolvePath(root, config, inputs)
				if err != nil {
					return nil, nil, err
				}

				entries, err := os.ReadDir(path)
				if err != nil {
					return nil, nil, fmt.Errorf("failed to list directory: %w", err)
				}

				names := make([]string, 0, len(entries))
				for _, entry := range entries {
					names = append(names, entry.Name())
				}

				return map[string]any{"files": names}, nil, nil
			}), nil
		},
	})
}

type skillFunc func(ctx context.Context, inputs map[string]any) (map[string]any, *models.UsageReport, error)

func (f skillFunc) Execute(ctx context.Context, inputs map[string]any) (map[string]any, *models.UsageReport, error) {
	return f(ctx, inputs)
}

// resolvePath reads the path from inputs, falling back to the node config,
// and confines it to the root directory.
func resolvePath(root string, config, inputs map[string]any) (string, error) {
	raw, _ := inputs["path"].(string)
	if raw == "" {
		raw, _ = config["path"].(string)
	}

	if raw == "" {
		return "", fmt.Errorf("path is required")
	}

	resolved := filepath.Join(root, filepath.Clean("/"+raw))
	if root != "" && !strings.HasPrefix(resolved, filepath.Clean(root)) {
		return "", fmt.Errorf("path %q escapes the skill root", raw)
	}

	return resolved, nil
}
