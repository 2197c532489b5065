package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/lectio/lectio/auth"
	"github.com/lectio/lectio/client"
	"github.com/lectio/lectio/pkg/clierr"
	"github.com/lectio/lectio/tracker"
)

// toCLIError maps library errors to the categories shown to the user.
func toCLIError(err error) error {
	if err == nil {
		return nil
	}
	var ce *clierr.Error
	if errors.As(err, &ce) {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return clierr.New(clierr.Internal, "Interrupted.", err)
	case errors.Is(err, tracker.ErrInvalidLectureID):
		return clierr.New(clierr.Validation, err.Error(), err)
	case errors.Is(err, auth.ErrInvalidCredentials):
		return clierr.New(clierr.Auth, "Request rejected by the backend: "+detailOf(err), err)
	case errors.Is(err, auth.ErrSessionExpired), errors.Is(err, client.ErrUnauthorized):
		return clierr.New(clierr.Auth, "Not signed in or the session has expired. Run 'lectio login'.", err)
	case errors.Is(err, tracker.ErrResourceNotFound), errors.Is(err, client.ErrNotFound):
		return clierr.New(clierr.NotFound, "Lecture not found.", err)
	case errors.Is(err, tracker.ErrProcessingFailed):
		return clierr.New(clierr.Internal, err.Error(), err)
	case client.IsTransient(err), errors.Is(err, context.DeadlineExceeded):
		return clierr.New(clierr.Network, fmt.Sprintf("Cannot reach the backend: %v", err), err)
	default:
		return clierr.New(clierr.Internal, err.Error(), err)
	}
}

// detailOf returns the backend's detail message when err carries one.
func detailOf(err error) string {
	var he *client.HTTPError
	if errors.As(err, &he) && he.Detail != "" {
		return he.Detail
	}
	return err.Error()
}
