package models

// TenantClaims are the bearer token claims the service relies on.
// The subject is the tenant identity used to scope object lookups.
type TenantClaims struct {
	Issuer    string `json:"iss,omitempty"`
	Subject   string `json:"sub"`
	IssuedAt  int64  `json:"iat,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
	Name      string `json:"name,omitempty"`
}
