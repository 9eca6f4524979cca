package cmd

import (
	"log/slog"

	"github.com/skillweave/skillweave/pkg/registry"
)

// NewRegistry builds the skill registry with the free built-in skills
// installed. Workers register their model-backed skills and toolset callers
// on top.
func NewRegistry(logger *slog.Logger, skillRoot string) *registry.Registry {
	r := registry.NewRegistry(logger)
	registry.RegisterBuiltins(r, skillRoot)

	return r
}
