// Package session runs one full trading day for one identity: it opens the
// conversation with the day's context, then alternates decision steps and
// tool execution until the decision process ends the day, the step budget
// runs out, or an unrecoverable failure stops the date.
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"llm-day-trader/internal/dispatch"
	"llm-day-trader/internal/interfaces"
	"llm-day-trader/internal/logger"
	"llm-day-trader/internal/prompt"
	"llm-day-trader/internal/retry"
	"llm-day-trader/internal/trace"
	"llm-day-trader/internal/types"
)

type Runner struct {
	prompt     *prompt.Builder
	transcript interfaces.TranscriptSink
	dispatcher *dispatch.Dispatcher
	decider    interfaces.Decider
	policy     retry.Policy
	maxSteps   int
	stopToken  string
}

func NewRunner(
	builder *prompt.Builder,
	ts interfaces.TranscriptSink,
	disp *dispatch.Dispatcher,
	decider interfaces.Decider,
	policy retry.Policy,
	maxSteps int,
	stopToken string,
) *Runner {
	if maxSteps <= 0 {
		maxSteps = 30
	}
	return &Runner{
		prompt:     builder,
		transcript: ts,
		dispatcher: disp,
		decider:    decider,
		policy:     policy,
		maxSteps:   maxSteps,
		stopToken:  stopToken,
	}
}

// Run executes the session for (identity, date). Every turn is persisted
// before the session advances, so the transcript on disk is always a prefix
// of the dialogue. Trades committed before a failure stay committed; the
// returned result reports how the day ended either way.
func (r *Runner) Run(ctx context.Context, identity string, date time.Time) (types.SessionResult, error) {
	ctx, span := trace.StartSpan(ctx, "session.Run")
	defer span.End()

	result := types.SessionResult{Identity: identity, Date: date, Status: types.StatusRunning}
	timer := logger.StartOperation(ctx, "session", "identity", identity, "date", types.FormatDate(date))

	opening, err := r.prompt.Build(ctx, identity, date)
	if err != nil {
		return r.fail(ctx, result, timer, fmt.Errorf("build opening context: %w", err))
	}

	turns := []types.Turn{opening}
	if err := r.transcript.Append(ctx, identity, date, opening); err != nil {
		return r.fail(ctx, result, timer, err)
	}

	for step := 0; step < r.maxSteps; step++ {
		result.Steps = step + 1

		var resp types.ModelResponse
		err := r.policy.Do(ctx, "decide", func(ctx context.Context) error {
			var derr error
			resp, derr = r.decider.Decide(ctx, turns)
			return derr
		})
		if err != nil {
			return r.fail(ctx, result, timer, fmt.Errorf("decision step %d: %w", step+1, err))
		}

		assistant := types.Turn{Role: types.RoleAssistant, Content: resp.Content}
		turns = append(turns, assistant)
		if err := r.transcript.Append(ctx, identity, date, assistant); err != nil {
			return r.fail(ctx, result, timer, err)
		}

		if stopRequested(resp.Content, r.stopToken) {
			result.Status = types.StatusFinished
			r.finish(ctx, result, timer)
			return result, nil
		}

		var toolTurn types.Turn
		if len(resp.ToolCalls) == 0 {
			toolTurn = types.Turn{
				Role: types.RoleTool,
				Content: fmt.Sprintf(
					"No tool calls were issued and the day was not ended. Call a tool, or finish your reply with %s on the final line.",
					r.stopToken),
			}
		} else {
			results, derr := r.dispatcher.Dispatch(ctx, identity, date, resp.ToolCalls)
			result.TradesExecuted += countTrades(results)
			toolTurn = types.Turn{Role: types.RoleTool, Content: renderResults(results)}
			if derr != nil {
				// Persist what happened before reporting the failure.
				if aerr := r.transcript.Append(ctx, identity, date, toolTurn); aerr != nil {
					logger.ErrorWithErr(ctx, "Transcript append failed during session failure", aerr,
						"identity", identity, "date", types.FormatDate(date))
				}
				return r.fail(ctx, result, timer, fmt.Errorf("dispatch step %d: %w", step+1, derr))
			}
		}

		turns = append(turns, toolTurn)
		if err := r.transcript.Append(ctx, identity, date, toolTurn); err != nil {
			return r.fail(ctx, result, timer, err)
		}
	}

	result.Status = types.StatusMaxStepsExceeded
	r.finish(ctx, result, timer)
	return result, nil
}

func (r *Runner) fail(ctx context.Context, result types.SessionResult, timer *logger.OperationTimer, err error) (types.SessionResult, error) {
	result.Status = types.StatusFailed
	logger.Session(ctx, result.Identity, types.FormatDate(result.Date), result.Status.String(), result.Steps, result.TradesExecuted > 0)
	timer.EndWithError(err)
	return result, err
}

func (r *Runner) finish(ctx context.Context, result types.SessionResult, timer *logger.OperationTimer) {
	logger.Session(ctx, result.Identity, types.FormatDate(result.Date), result.Status.String(), result.Steps, result.TradesExecuted > 0)
	timer.End()
}

func countTrades(results []types.ToolResult) int {
	n := 0
	for _, res := range results {
		if res.IsError {
			continue
		}
		if res.Name == "buy" || res.Name == "sell" {
			n++
		}
	}
	return n
}

// renderResults folds all tool outputs of one step into a single tool turn,
// in call order.
func renderResults(results []types.ToolResult) string {
	parts := make([]string, 0, len(results))
	for _, res := range results {
		if res.IsError {
			parts = append(parts, fmt.Sprintf("%s failed: %s", res.Name, res.Content))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", res.Name, res.Content))
		}
	}
	return strings.Join(parts, "\n")
}
