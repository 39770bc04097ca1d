// Package agents implements the four pipeline stages. Each agent reads the
// state it needs and returns a domain.StageResult; none of them mutate the
// state directly.
package agents

import (
	"encoding/json"
	"log/slog"

	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
)

// Failure prefixes of the stage errors, as shown to users.
const (
	requirementsFailed = "Requirements analysis failed"
	architectureFailed = "Architecture design failed"
	iacFailed          = "IaC generation failed"
	deploymentFailed   = "Deployment failed"
)

func fail(stage domain.StageName, prefix string, err error) domain.StageResult {
	return domain.StageResult{Errors: []string{domain.NewStageError(stage, prefix, err).Error()}}
}

func orDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}

// indentJSON renders v for a prompt. Raw completion maps are preferred so
// fields the typed outputs do not model still reach the next stage.
func indentJSON(raw map[string]any, typed any) string {
	var v any = typed
	if len(raw) > 0 {
		v = raw
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
