package gate

import (
	"strings"

	"quincy-backend/internal/models"
)

// Route binds a path pattern to a tier. Segments starting with ':' match any
// single non-empty segment.
type Route struct {
	Pattern string
	Tier    Tier
}

type compiledRoute struct {
	segments []string
	tier     Tier
}

// Policy is a static route table with a fallback tier for unmatched paths.
type Policy struct {
	routes   []compiledRoute
	fallback Tier
}

// DefaultRoutes is the route table of the Quincy web client.
var DefaultRoutes = []Route{
	{Pattern: "/", Tier: TierPublic},
	{Pattern: "/home", Tier: TierPublic},
	{Pattern: "/auth", Tier: TierPublic},
	{Pattern: "/login", Tier: TierPublic},
	{Pattern: "/signup", Tier: TierPublic},
	{Pattern: "/event", Tier: TierPublic},

	{Pattern: "/onboarding", Tier: TierAuthOnly},

	{Pattern: "/me", Tier: TierOnboarded},
	{Pattern: "/music-preferences", Tier: TierOnboarded},

	// Upload target. Gating it on upload would redirect to itself.
	{Pattern: "/records", Tier: TierRSVP},

	{Pattern: "/records/:id", Tier: TierUpload},
	{Pattern: "/people", Tier: TierUpload},
	{Pattern: "/people/:id", Tier: TierUpload},
	{Pattern: "/swipe", Tier: TierUpload},
	{Pattern: "/matches", Tier: TierUpload},
	{Pattern: "/chat/:id", Tier: TierUpload},
}

// NewPolicy compiles routes. The first matching route wins.
func NewPolicy(routes []Route, fallback Tier) *Policy {
	p := &Policy{fallback: fallback}
	for _, r := range routes {
		p.routes = append(p.routes, compiledRoute{
			segments: splitPath(Normalize(r.Pattern)),
			tier:     r.Tier,
		})
	}
	return p
}

// DefaultPolicy returns the policy for DefaultRoutes. Unknown paths require onboarding.
func DefaultPolicy() *Policy {
	return NewPolicy(DefaultRoutes, TierOnboarded)
}

// Classify returns the tier of a normalized path.
func (p *Policy) Classify(path string) Tier {
	segments := splitPath(path)
	for _, r := range p.routes {
		if matchSegments(r.segments, segments) {
			return r.tier
		}
	}
	return p.fallback
}

// Decide resolves a navigation attempt to requestedPath.
func (p *Policy) Decide(progress models.Progress, requestedPath string) Decision {
	path := Normalize(requestedPath)
	return Evaluate(progress, p.Classify(path), path)
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func matchSegments(pattern, path []string) bool {
	if len(pattern) != len(path) {
		return false
	}
	for i, seg := range pattern {
		if strings.HasPrefix(seg, ":") {
			if path[i] == "" {
				return false
			}
			continue
		}
		if seg != path[i] {
			return false
		}
	}
	return true
}
