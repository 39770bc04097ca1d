package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/KaranKendre11/VibeOPS/internal/core/domain"
	"github.com/KaranKendre11/VibeOPS/internal/core/ports"
	"github.com/KaranKendre11/VibeOPS/internal/tokens"
)

// Requirements extracts structured requirements from the request and the
// most recent conversation turns.
type Requirements struct {
	completer ports.Completer
	history   *tokens.HistoryBudget
	logger    *slog.Logger
}

func NewRequirements(c ports.Completer, history *tokens.HistoryBudget, logger *slog.Logger) *Requirements {
	return &Requirements{completer: c, history: history, logger: orDiscard(logger)}
}

func (a *Requirements) Name() domain.StageName { return domain.StageRequirements }

func (a *Requirements) Execute(ctx context.Context, st *domain.PipelineState) domain.StageResult {
	turns := st.History
	if a.history != nil {
		turns = a.history.Select(st.History)
	}

	prompt, err := render(requirementsPrompt, struct {
		Input   string
		History string
	}{st.Input, tokens.Format(turns)})
	if err != nil {
		return fail(a.Name(), requirementsFailed, err)
	}

	m, err := a.completer.GenerateStructured(ctx, prompt)
	if err != nil {
		return fail(a.Name(), requirementsFailed, err)
	}
	req, err := domain.DecodeRequirements(m)
	if err != nil {
		return fail(a.Name(), requirementsFailed, err)
	}

	a.logger.Debug("requirements analyzed",
		slog.Int("history_turns", len(turns)),
		slog.Int("services", len(req.ServicesNeeded)),
	)

	return domain.StageResult{
		Requirements: req,
		Logs:         []string{fmt.Sprintf("Requirements analyzed: %d services identified", len(req.ServicesNeeded))},
	}
}
