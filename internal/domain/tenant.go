package domain

// Scope carries the caller's tenant and identity into every operation.
// It is passed explicitly; there is no ambient tenant.
type Scope struct {
	TenantID string
	ActorID  string
}

// NewScope builds a Scope for the given tenant and acting member or staff id.
func NewScope(tenantID, actorID string) Scope {
	return Scope{TenantID: tenantID, ActorID: actorID}
}

// Validate rejects calls without a tenant context.
func (s Scope) Validate() error {
	if s.TenantID == "" {
		return ErrTenantRequired
	}
	return nil
}

// Owns reports whether an entity belonging to tenantID is visible in this scope.
func (s Scope) Owns(tenantID string) bool {
	return s.TenantID == tenantID
}
