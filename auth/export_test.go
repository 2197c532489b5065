package auth

import "context"

// RefreshForTest drives a refresh as a caller that last saw refreshToken.
func RefreshForTest(ctx context.Context, g *Gateway, refreshToken string) (string, error) {
	return g.refresh(ctx, refreshToken)
}
