package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/samber/lo"

	"unifeed/internal/config"
	"unifeed/internal/feed"
	"unifeed/internal/sources"
)

// Decision is the typed enablement outcome for one configured source.
// Adapter is nil iff Enabled is false.
type Decision struct {
	Source  string
	Enabled bool
	Reason  string
	Adapter sources.Adapter
}

// Registry decides which adapters are enabled for a run from the policy
// list and the credential sets actually present. Disabled-by-policy wins
// over credential presence.
type Registry struct {
	cfg   *config.Config
	creds config.Credentials
}

func New(cfg *config.Config, creds config.Credentials) *Registry {
	return &Registry{cfg: cfg, creds: creds}
}

// ConfiguredSources is the fixed enumeration order every run uses: the
// merge tiebreak and the status map both derive from it.
func ConfiguredSources() []string {
	return []string{feed.SourceReddit, feed.SourceBluesky, feed.SourceRSS}
}

// Resolve returns exactly one decision per configured source, in
// enumeration order.
func (r *Registry) Resolve() []Decision {
	decisions := make([]Decision, 0, len(ConfiguredSources()))

	for _, source := range ConfiguredSources() {
		decision := r.resolveSource(source)
		if decision.Enabled {
			slog.Debug("Source enabled", "source", source)
		} else {
			slog.Info("Source disabled", "source", source, "reason", decision.Reason)
		}
		decisions = append(decisions, decision)
	}

	return decisions
}

func (r *Registry) resolveSource(source string) Decision {
	if lo.Contains(r.cfg.Sources.Disabled, source) {
		return Decision{Source: source, Reason: "disabled by policy"}
	}

	switch source {
	case feed.SourceReddit:
		if missing := missingOf(map[string]string{
			config.EnvRedditUserAgent: r.creds.RedditUserAgent,
		}); missing != "" {
			return Decision{Source: source, Reason: missing}
		}
		if len(r.cfg.Sources.Reddit.Subreddits) == 0 {
			return Decision{Source: source, Reason: "no subreddits configured"}
		}
		return Decision{
			Source:  source,
			Enabled: true,
			Adapter: sources.NewRedditAdapter(r.creds.RedditUserAgent, r.cfg.Sources.Reddit.Subreddits),
		}

	case feed.SourceBluesky:
		if missing := missingOf(map[string]string{
			config.EnvBlueskyIdentifier: r.creds.BlueskyIdentifier,
			config.EnvBlueskyPassword:   r.creds.BlueskyPassword,
		}); missing != "" {
			return Decision{Source: source, Reason: missing}
		}
		return Decision{
			Source:  source,
			Enabled: true,
			Adapter: sources.NewBlueskyAdapter(r.creds.BlueskyIdentifier, r.creds.BlueskyPassword, r.cfg.Sources.Bluesky.Actor),
		}

	case feed.SourceRSS:
		if len(r.cfg.Sources.RSS.Feeds) == 0 {
			return Decision{Source: source, Reason: "no feed urls configured"}
		}
		return Decision{
			Source:  source,
			Enabled: true,
			Adapter: sources.NewRSSAdapter(r.cfg.Sources.RSS.Feeds),
		}
	}

	return Decision{Source: source, Reason: "unknown source"}
}

func missingOf(required map[string]string) string {
	missing := lo.Keys(lo.PickBy(required, func(_ string, v string) bool {
		return v == ""
	}))
	if len(missing) == 0 {
		return ""
	}
	sort.Strings(missing)
	return fmt.Sprintf("missing credentials: %s", strings.Join(missing, ", "))
}
