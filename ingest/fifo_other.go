//go:build !unix

package ingest

import (
	"context"
	"errors"
)

func (s *Server) ServeFIFO(ctx context.Context, path string) error {
	return errors.New("fifo input is only supported on unix")
}
