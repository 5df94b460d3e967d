package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bookkeep/internal/core"
)

// A template is DUE when its next occurrence date is not after "now";
// otherwise it is SCHEDULED. catchUpLimit bounds how many missed
// occurrences one invocation will materialize for a single template.
const catchUpLimit = 366

// TemplateSource lists recurring templates whose next occurrence is due.
type TemplateSource interface {
	DueTemplates(ctx context.Context, now time.Time) ([]core.Transaction, error)
}

// Materializer commits one concrete transaction from a template and
// advances the template's next occurrence in the same atomic unit. It
// must be idempotent per (template id, due date): a call for an
// already-advanced template is a no-op reporting false.
type Materializer interface {
	Materialize(ctx context.Context, tmpl core.Transaction, due, next, processedAt time.Time) (bool, error)
}

// Result reports one processing run.
type Result struct {
	Processed int
	Failed    int
}

// Processor materializes due recurring templates through the ledger.
type Processor struct {
	source TemplateSource
	ledger Materializer
}

func NewProcessor(source TemplateSource, ledger Materializer) *Processor {
	return &Processor{source: source, ledger: ledger}
}

// ProcessDue materializes every due occurrence of every due template.
//
// A failing template is left DUE and retried on the next invocation; it
// never blocks processing of the other templates. Missed windows are
// caught up occurrence by occurrence, each in its own atomic unit, so the
// cadence stays anchored to the original schedule.
func (p *Processor) ProcessDue(ctx context.Context, now time.Time) (Result, error) {
	templates, err := p.source.DueTemplates(ctx, now)
	if err != nil {
		return Result{}, fmt.Errorf("list due templates: %w", err)
	}

	slog.InfoContext(ctx, "Processing due recurring templates",
		"due", len(templates),
		"processing_date", now.Format("2006-01-02"))

	var res Result
	for _, tmpl := range templates {
		n, err := p.processTemplate(ctx, tmpl, now)
		res.Processed += n
		if err != nil {
			res.Failed++
			slog.ErrorContext(ctx, "Failed to materialize recurring template",
				"template_id", tmpl.ID,
				"description", tmpl.Description,
				"error", err)
			continue
		}
	}

	slog.InfoContext(ctx, "Recurring processing complete",
		"materialized", res.Processed,
		"failed", res.Failed)
	return res, nil
}

// processTemplate walks the template forward from its stored next date
// until it is no longer due, returning how many occurrences were
// materialized. On error the template stays at the failed occurrence.
func (p *Processor) processTemplate(ctx context.Context, tmpl core.Transaction, now time.Time) (int, error) {
	anchor := tmpl.OccurredAt
	due := tmpl.NextRecurringDate
	count := 0

	for !due.After(now) {
		if count >= catchUpLimit {
			return count, fmt.Errorf("catch-up limit reached at %s", due.Format("2006-01-02"))
		}
		next, err := NextDate(tmpl.RecurringInterval, due, anchor)
		if err != nil {
			return count, err
		}
		committed, err := p.ledger.Materialize(ctx, tmpl, due, next, now)
		if err != nil {
			return count, fmt.Errorf("materialize occurrence %s: %w", due.Format("2006-01-02"), err)
		}
		// A no-op advance means another run owns this window; it is
		// not counted, but the walk continues at the next occurrence.
		if committed {
			slog.InfoContext(ctx, "Materialized transaction from recurring template",
				"template_id", tmpl.ID,
				"due_date", due.Format("2006-01-02"),
				"next_date", next.Format("2006-01-02"))
			count++
		}
		due = next
	}
	return count, nil
}
