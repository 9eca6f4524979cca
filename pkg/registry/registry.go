// Package registry holds the installed skill and toolset implementations a
// worker can execute, with JSON-schema validation of per-node configuration.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/skillweave/skillweave/pkg/models"
)

// Skill is one executable AI capability.
type Skill interface {
	Execute(ctx context.Context, inputs map[string]any) (map[string]any, *models.UsageReport, error)
}

// SkillFactory builds a skill instance from its validated node configuration.
type SkillFactory func(config map[string]any) (Skill, error)

// SkillDefinition pairs a skill's factory with the JSON schema its node
// configuration must satisfy. A nil schema accepts any configuration.
type SkillDefinition struct {
	Name         string
	ConfigSchema map[string]any
	Factory      SkillFactory
}

// ToolCaller invokes one named tool of a toolset.
type ToolCaller interface {
	Call(ctx context.Context, toolName string, inputs map[string]any) (map[string]any, error)
}

// ToolCallerFunc adapts a function to the ToolCaller interface.
type ToolCallerFunc func(ctx context.Context, toolName string, inputs map[string]any) (map[string]any, error)

func (f ToolCallerFunc) Call(ctx context.Context, toolName string, inputs map[string]any) (map[string]any, error) {
	return f(ctx, toolName, inputs)
}

type Registry struct {
	logger   *slog.Logger
	skills   map[string]SkillDefinition
	toolsets map[string]ToolCaller
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger.With("module", "registry"),
		skills:   make(map[string]SkillDefinition),
		toolsets: make(map[string]ToolCaller),
	}
}

// RegisterSkill installs a skill definition, replacing any previous one with
// the same name.
func (r *Registry) RegisterSkill(def SkillDefinition) {
	r.logger.Debug("registering skill", "skill_name", def.Name)
	r.skills[def.Name] = def
}

// RegisterToolset installs the caller for a toolset.
func (r *Registry) RegisterToolset(toolsetID string, caller ToolCaller) {
	r.logger.Debug("registering toolset", "toolset_id", toolsetID)
	r.toolsets[toolsetID] = caller
}

// AvailableSkills returns the registered skill names, sorted.
func (r *Registry) AvailableSkills() []string {
	names := make([]string, 0, len(r.skills))
	for name := range r.skills {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// CreateSkill validates the configuration against the skill's schema and
// builds an instance.
func (r *Registry) CreateSkill(name string, config map[string]any) (Skill, error) {
	def, ok := r.skills[name]
	if !ok {
		return nil, fmt.Errorf("skill '%s' not registered", name)
	}

	if def.ConfigSchema != nil {
		if err := validateJSONSchema(config, def.ConfigSchema); err != nil {
			return nil, fmt.Errorf("skill '%s' config invalid: %w", name, err)
		}
	}

	return def.Factory(config)
}

// Toolset returns the caller registered for a toolset id.
func (r *Registry) Toolset(toolsetID string) (ToolCaller, error) {
	caller, ok := r.toolsets[toolsetID]
	if !ok {
		return nil, fmt.Errorf("toolset '%s' not registered", toolsetID)
	}

	return caller, nil
}

// validateJSONSchema validates a configuration document against a JSON schema.
func validateJSONSchema(config, schema map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		var errorMessages []string
		for _, desc := range result.Errors() {
			errorMessages = append(errorMessages, desc.String())
		}

		return fmt.Errorf("validation failed: %s", strings.Join(errorMessages, "; "))
	}

	return nil
}
