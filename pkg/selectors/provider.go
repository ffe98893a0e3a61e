package selectors

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Provider supplies platform-aware selector sets. Implementations may be
// backed by a remote configuration service; the engine never trusts one on
// shape alone. A provider is accepted only when its integrity token matches
// the token the engine was built to expect, and even then every returned set
// is re-validated structurally before use.
type Provider interface {
	// GetSelectors returns the selector set for the given platform id
	// (empty string selects the provider's default platform).
	GetSelectors(ctx context.Context, platform string) (Set, error)

	// GetVersion returns the provider's data version string.
	GetVersion(ctx context.Context) (string, error)

	// IntegrityToken returns the provider's attestation token. Checked
	// against the engine's expected token at load time.
	IntegrityToken() string
}

// Load fetches a selector set from the provider, falling back to the bundled
// defaults when the provider is untrusted, errors, or returns an invalid set.
// Returns the chosen set and whether the fallback was used.
func Load(ctx context.Context, p Provider, expectToken, platform string, log *logrus.Entry) (Set, bool) {
	if p == nil {
		log.Debug("No selector provider configured, using bundled fallback set")
		return Fallback(), true
	}
	if expectToken == "" || p.IntegrityToken() != expectToken {
		log.Warn("Selector provider integrity token mismatch, using bundled fallback set")
		return Fallback(), true
	}

	set, err := p.GetSelectors(ctx, platform)
	if err != nil {
		log.Warnf("Selector provider failed: %v, using bundled fallback set", err)
		return Fallback(), true
	}
	if err := Validate(set); err != nil {
		log.Warnf("Selector provider returned invalid set: %v, using bundled fallback set", err)
		return Fallback(), true
	}

	if version, err := p.GetVersion(ctx); err == nil {
		log.WithFields(logrus.Fields{"version": version, "platform": platform}).
			Info("Loaded selector set from provider")
	}
	return set.Clone(), false
}
