package auth

// Credential is the access/refresh token pair of a session.
type Credential struct {
	AccessToken  string
	RefreshToken string
}

// Complete reports whether both tokens are present.
func (c *Credential) Complete() bool {
	return c != nil && c.AccessToken != "" && c.RefreshToken != ""
}

func validatePair(accessToken, refreshToken string) error {
	if accessToken == "" || refreshToken == "" {
		return ErrIncompleteCredential
	}
	return nil
}
