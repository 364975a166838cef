package router

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/openhouse-labs/scheme-intel/internal/model"
)

// Registry holds the retrieval function names the caller has wired. The router only
// ever emits names present here; Validate catches a misconfigured deployment
// at startup rather than at request time.
type Registry struct {
	funcs map[string]bool
}

// KnownFunctions is the closed set of live-data retrieval functions.
var KnownFunctions = []string{
	"getRegistrationRate",
	"getHandoverPipeline",
	"getHomeownerActivity",
	"getStagePaymentStatus",
	"getProjectedRevenue",
	"getDocumentCoverage",
	"getMostAskedQuestions",
	"getOutstandingSnags",
	"getKitchenSelections",
	"getSchemeSummary",
	"getCommunicationsLog",
	"getUnitTypeBreakdown",
	"getSEAIGrants",
}

// NewRegistry builds a registry over the given function names.
func NewRegistry(names ...string) *Registry {
	if len(names) == 0 {
		names = KnownFunctions
	}
	funcs := make(map[string]bool, len(names))
	for _, n := range names {
		funcs[n] = true
	}
	return &Registry{funcs: funcs}
}

// Has reports whether the function name is registered.
func (r *Registry) Has(name string) bool {
	return r.funcs[name]
}

// Names returns the registered function names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every function the fallback table and classifier
// prompt can emit is registered. A miss is a programming error; callers
// should fail startup on it.
func (r *Registry) Validate() error {
	for _, rule := range fallbackFunctionRules {
		if !r.Has(rule.function) {
			return eris.Wrapf(model.ErrUnknownFunction,
				"fallback rule %q references %s", rule.keyword, rule.function)
		}
	}
	if !r.Has(defaultFunction) {
		return eris.Wrapf(model.ErrUnknownFunction, "default decision references %s", defaultFunction)
	}
	return nil
}
