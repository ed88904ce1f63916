package auth

// ToPrincipal maps validated session claims onto a Principal. Claims are
// checked for completeness during parsing, so this cannot fail.
func ToPrincipal(c SessionClaims) Principal {
	return Principal{
		ID:     c.UserID,
		Email:  c.Email,
		Role:   c.Role,
		Active: true,
	}
}
