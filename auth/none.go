package auth

// None is an Auth that always succeeds: every user authenticates and holds
// AllPermissions. Suitable for a trusted, single-tenant embedding (the
// default for sql.Register("waveql", ...) when no Auth is configured).
type None struct{}

// Authenticate implements Auth.
func (n *None) Authenticate(user, password string) error {
	return nil
}

// Allowed implements Auth.
func (n *None) Allowed(user string, permission Permission) error {
	return nil
}
