package auth

import "net/http"

// Authorizer decides whether a mutating request may proceed. The HTTP layer
// consults it before PUT, PATCH and DELETE.
type Authorizer interface {
	Authorize(r *http.Request) bool
}

// StaticAuthorizer is the shipped implementation: a deployment-wide flag.
// A per-owner policy would slot in behind the same interface.
type StaticAuthorizer struct {
	AllowWrites bool
}

func (a StaticAuthorizer) Authorize(*http.Request) bool {
	return a.AllowWrites
}
