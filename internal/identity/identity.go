package identity

// User is the identity provider's view of the current user. The engine never
// stores users; it only needs a stable id plus display fields for presence.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// FromClaims extracts the User from verified token claims.
func FromClaims(claims map[string]interface{}) User {
	u := User{}
	if sub, ok := claims["sub"].(string); ok {
		u.ID = sub
	}
	if email, ok := claims["email"].(string); ok {
		u.Email = email
	}
	if name, ok := claims["name"].(string); ok {
		u.DisplayName = name
	}
	return u
}
