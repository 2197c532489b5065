package client

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// limitedReader throttles reads from under to the limiter's byte rate.
type limitedReader struct {
	ctx   context.Context
	under io.Reader
	lim   *rate.Limiter
}

func (lr *limitedReader) Read(p []byte) (int, error) {
	// WaitN fails for n larger than the burst, so cap each read to it.
	if burst := lr.lim.Burst(); len(p) > burst {
		p = p[:burst]
	}
	n, err := lr.under.Read(p)
	if n > 0 {
		if waitErr := lr.lim.WaitN(lr.ctx, n); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}

// wrapUpload applies the upload bandwidth limit, if any.
func (c *Client) wrapUpload(ctx context.Context, r io.Reader) io.Reader {
	if c.uploadLimit == nil {
		return r
	}
	return &limitedReader{ctx: ctx, under: r, lim: c.uploadLimit}
}
