// Package gate blocks run starts on unauthorized toolsets.
package gate

import (
	"log/slog"
	"sort"

	"github.com/skillweave/skillweave/pkg/graph"
	"github.com/skillweave/skillweave/pkg/models"
)

// Gate computes which toolsets referenced by a run's execution scope are
// unauthorized for the invoking principal. It holds no state: every check
// reads a fresh authorization snapshot so retries never act on stale data.
type Gate struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Gate {
	return &Gate{logger: logger.With("module", "gate")}
}

// Check returns one blocker per unauthorized toolset referenced by an
// in-scope node, with the referencing node ids. An empty result authorizes
// the run to leave init.
func (g *Gate) Check(snapshot *graph.Snapshot, scope []string, auth models.ToolsetAuthorization) []models.ToolsetBlocker {
	referencing := make(map[string][]string)

	for _, nodeID := range scope {
		node := snapshot.Node(nodeID)
		if node == nil {
			continue
		}

		for _, toolsetID := range node.ToolsetIDs() {
			if auth.Authorized(toolsetID) {
				continue
			}

			referencing[toolsetID] = append(referencing[toolsetID], nodeID)
		}
	}

	if len(referencing) == 0 {
		return nil
	}

	toolsetIDs := make([]string, 0, len(referencing))
	for toolsetID := range referencing {
		toolsetIDs = append(toolsetIDs, toolsetID)
	}

	sort.Strings(toolsetIDs)

	blockers := make([]models.ToolsetBlocker, 0, len(toolsetIDs))
	for _, toolsetID := range toolsetIDs {
		blockers = append(blockers, models.ToolsetBlocker{
			ToolsetID: toolsetID,
			NodeIDs:   referencing[toolsetID],
		})
	}

	g.logger.Warn("run blocked on unauthorized toolsets", "toolsets", toolsetIDs)

	return blockers
}
