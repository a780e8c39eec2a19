// Package roles provides the claims-based permission evaluator consumed by
// the order lifecycle service. Real deployments delegate to the platform's
// policy service; this implementation answers from the roles carried on the
// actor itself.
package roles

import "github.com/imrishuroy/resto-orderflow/internal/orderflow"

// ClaimsEvaluator grants a role when the actor's claims include it.
type ClaimsEvaluator struct{}

// NewClaimsEvaluator returns an evaluator over actor claims.
func NewClaimsEvaluator() ClaimsEvaluator { return ClaimsEvaluator{} }

// HasRole reports whether the actor holds at least one of the given roles.
func (ClaimsEvaluator) HasRole(actor orderflow.Actor, wanted ...string) bool {
	for _, have := range actor.Roles {
		for _, want := range wanted {
			if have == want {
				return true
			}
		}
	}
	return false
}
