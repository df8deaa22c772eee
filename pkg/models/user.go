package models

// User is the identity the auth role resolves a credential to.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	// AllowedModels is the model allow-list in effect when this user's
	// credential was issued, carried on JWTs so a caller can see its
	// own restrictions without a round trip to the auth role.
	AllowedModels []string `json:"allowed_models,omitempty"`
}
