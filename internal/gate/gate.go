// Package gate decides which page a user may open given their funnel progress.
//
// The funnel is evaluated in a fixed order: authentication, onboarding, RSVP,
// upload. The first unmet requirement of a route's tier determines the redirect.
package gate

import (
	"strings"

	"quincy-backend/internal/models"
)

// Canonical redirect targets
const (
	PathAuth       = "/auth"
	PathOnboarding = "/onboarding"
	PathEvent      = "/event"
	PathRecords    = "/records"
)

// Tier classifies a route by the funnel requirements it implies.
type Tier int

const (
	TierPublic Tier = iota
	// TierAuthOnly requires a session and an unfinished onboarding.
	TierAuthOnly
	TierOnboarded
	TierRSVP
	TierUpload
)

var tierNames = map[Tier]string{
	TierPublic:    "public",
	TierAuthOnly:  "auth-only",
	TierOnboarded: "onboarded",
	TierRSVP:      "rsvp-gated",
	TierUpload:    "upload-gated",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "unknown"
}

// Decision is the outcome of a navigation attempt.
type Decision struct {
	Allow      bool   `json:"allow"`
	RedirectTo string `json:"redirect_to,omitempty"`
	// ReturnTo is set on auth redirects so the client can resume after login.
	ReturnTo string `json:"return_to,omitempty"`
}

func allow() Decision {
	return Decision{Allow: true}
}

func redirect(to string) Decision {
	return Decision{RedirectTo: to}
}

// Evaluate applies the checks implied by tier to p. path is only used to fill
// ReturnTo and must already be normalized.
func Evaluate(p models.Progress, tier Tier, path string) Decision {
	if tier == TierPublic {
		return allow()
	}

	if !p.Authenticated {
		return Decision{RedirectTo: PathAuth, ReturnTo: path}
	}

	if tier == TierAuthOnly {
		if p.OnboardingComplete {
			return redirect(PathEvent)
		}
		return allow()
	}

	if !p.OnboardingComplete {
		return redirect(PathOnboarding)
	}
	if tier == TierOnboarded {
		return allow()
	}

	if !p.HasRSVP {
		return redirect(PathEvent)
	}
	if tier == TierRSVP {
		return allow()
	}

	if !p.HasUploaded {
		return redirect(PathRecords)
	}
	return allow()
}

// Normalize strips query and fragment and trailing slashes from a requested path.
func Normalize(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	for len(path) > 1 && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

var defaultPolicy = DefaultPolicy()

// ResolveDestination decides a navigation attempt against the default route table.
func ResolveDestination(p models.Progress, requestedPath string) Decision {
	return defaultPolicy.Decide(p, requestedPath)
}
