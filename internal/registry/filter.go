package registry

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/orca-network/explorer/internal/validation"
)

// Filter narrows an agent listing. Zero-valued fields are no-ops.
type Filter struct {
	Owner         string
	MinReputation *int
	MinFeedback   *int
	VerifiedOnly  bool
}

// Match reports whether a passes every set condition.
func (f Filter) Match(a AgentData) bool {
	if f.Owner != "" && !strings.EqualFold(a.Address, f.Owner) {
		return false
	}
	if f.MinReputation != nil && a.Reputation.Score < *f.MinReputation {
		return false
	}
	if f.MinFeedback != nil && a.Reputation.Count < *f.MinFeedback {
		return false
	}
	if f.VerifiedOnly && a.Validation.Count <= 0 {
		return false
	}
	return true
}

// ApplyFilters returns the agents matching f in their original order.
func ApplyFilters(agents []AgentData, f Filter) []AgentData {
	out := make([]AgentData, 0, len(agents))
	for _, a := range agents {
		if f.Match(a) {
			out = append(out, a)
		}
	}
	return out
}

// ParseFilter reads a Filter from query parameters. minReputation and
// minFeedback may also be given as reputation and feedback.
func ParseFilter(q url.Values) (Filter, error) {
	f := Filter{
		Owner:        validation.SanitizeString(q.Get("owner"), validation.MaxStringLength),
		VerifiedOnly: q.Get("verified") == "true",
	}

	errs := validation.Validate(
		validation.Integer("minReputation", firstOf(q, "minReputation", "reputation"), &f.MinReputation),
		validation.Integer("minFeedback", firstOf(q, "minFeedback", "feedback"), &f.MinFeedback),
	)
	if len(errs) > 0 {
		return Filter{}, fmt.Errorf("%w: %s", ErrInvalidQuery, errs.Error())
	}
	return f, nil
}

func firstOf(q url.Values, keys ...string) string {
	for _, k := range keys {
		if v := q.Get(k); v != "" {
			return v
		}
	}
	return ""
}
