package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"unifeed/internal/feed"
	"unifeed/internal/registry"
	"unifeed/internal/sources"
)

type Options struct {
	Limit            int
	PerSourceTimeout time.Duration
	TotalBudget      time.Duration
}

// Orchestrator drives one aggregation run: every enabled adapter fetches
// concurrently under its own timeout, the join is bounded by the total
// budget, and the merged result is deduplicated and ordered into an
// envelope. No single source failure fails the run; Run itself errors
// only on wiring invariant violations.
type Orchestrator struct {
	decisions []registry.Decision
	opts      Options
}

func NewOrchestrator(decisions []registry.Decision, opts Options) *Orchestrator {
	return &Orchestrator{decisions: decisions, opts: opts}
}

type fetchResult struct {
	source string
	items  []feed.Item
	err    error
}

func (o *Orchestrator) Run(ctx context.Context) (*feed.Envelope, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}

	enabled := lo.Filter(o.decisions, func(d registry.Decision, _ int) bool {
		return d.Enabled
	})

	slog.Info("Starting aggregation run",
		"configured", len(o.decisions), "enabled", len(enabled),
		"per_source_timeout", o.opts.PerSourceTimeout, "total_budget", o.opts.TotalBudget)

	results := o.fetchAll(ctx, enabled)

	items := o.merge(results)
	feed.SortItems(items)

	env := &feed.Envelope{
		SchemaVersion:  feed.SchemaVersion,
		GeneratedAt:    time.Now().UTC(),
		Items:          items,
		SourceStatuses: o.buildStatuses(results),
	}

	slog.Info("Aggregation run complete", "items", len(env.Items))
	return env, nil
}

func (o *Orchestrator) validate() error {
	if o.opts.Limit <= 0 {
		return fmt.Errorf("orchestrator misconfigured: limit must be positive, got %d", o.opts.Limit)
	}
	if o.opts.PerSourceTimeout <= 0 {
		return fmt.Errorf("orchestrator misconfigured: per-source timeout must be positive")
	}
	if o.opts.TotalBudget <= 0 {
		return fmt.Errorf("orchestrator misconfigured: total budget must be positive")
	}
	for _, d := range o.decisions {
		if d.Enabled && d.Adapter == nil {
			return fmt.Errorf("orchestrator misconfigured: source %s enabled without adapter", d.Source)
		}
	}
	return nil
}

// fetchAll runs every enabled fetch concurrently and collects whatever
// finishes inside the total budget. Sources still pending when the
// budget elapses get no result entry; their in-flight fetches are
// cancelled and any buffered output is discarded, keeping a source's
// contribution all-or-nothing.
func (o *Orchestrator) fetchAll(ctx context.Context, enabled []registry.Decision) map[string]fetchResult {
	results := make(map[string]fetchResult, len(enabled))
	if len(enabled) == 0 {
		return results
	}

	gctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resCh := make(chan fetchResult, len(enabled))
	for _, decision := range enabled {
		go o.fetchOne(gctx, decision, resCh)
	}

	budget := time.NewTimer(o.opts.TotalBudget)
	defer budget.Stop()

	pending := len(enabled)
collect:
	for pending > 0 {
		select {
		case res := <-resCh:
			results[res.source] = res
			pending--
		case <-budget.C:
			slog.Warn("Total budget elapsed with fetches still pending", "pending", pending)
			break collect
		case <-ctx.Done():
			break collect
		}
	}

	return results
}

func (o *Orchestrator) fetchOne(ctx context.Context, decision registry.Decision, resCh chan<- fetchResult) {
	sctx, cancel := context.WithTimeout(ctx, o.opts.PerSourceTimeout)
	defer cancel()

	items, err := decision.Adapter.Fetch(sctx, sources.FetchOptions{Limit: o.opts.Limit})
	if err != nil {
		if sctx.Err() != nil {
			err = sources.NewSourceError(decision.Source, sources.KindUnavailable,
				fmt.Errorf("fetch timed out after %v", o.opts.PerSourceTimeout))
		}
		slog.Warn("Source fetch failed", "source", decision.Source, "error", err)
		resCh <- fetchResult{source: decision.Source, err: err}
		return
	}

	slog.Debug("Source fetch succeeded", "source", decision.Source, "items", len(items))
	resCh <- fetchResult{source: decision.Source, items: items}
}

// merge concatenates successful sources in enumeration order and drops
// duplicate (source, external_id) pairs, keeping the first occurrence.
// Completion order never affects the output, so identical inputs give
// identical envelopes.
func (o *Orchestrator) merge(results map[string]fetchResult) []feed.Item {
	merged := make([]feed.Item, 0)
	seen := make(map[string]struct{})

	for _, decision := range o.decisions {
		res, ok := results[decision.Source]
		if !ok || res.err != nil {
			continue
		}
		for _, item := range res.items {
			key := item.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, item)
		}
	}

	return merged
}

// buildStatuses emits exactly one status per configured source so
// operators can tell disabled apart from failed.
func (o *Orchestrator) buildStatuses(results map[string]fetchResult) map[string]feed.SourceStatus {
	statuses := make(map[string]feed.SourceStatus, len(o.decisions))

	for _, decision := range o.decisions {
		status := feed.SourceStatus{
			Source:  decision.Source,
			Enabled: decision.Enabled,
			Reason:  decision.Reason,
		}

		if decision.Enabled {
			res, ok := results[decision.Source]
			switch {
			case !ok:
				status.Error = fmt.Sprintf("aborted: total budget of %v exceeded", o.opts.TotalBudget)
			case res.err != nil:
				status.Error = res.err.Error()
			default:
				status.Succeeded = true
				status.ItemCount = len(res.items)
			}
		}

		statuses[decision.Source] = status
	}

	return statuses
}
