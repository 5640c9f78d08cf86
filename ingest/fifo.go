//go:build unix

package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"syscall"
)

// ServeFIFO creates the named pipe at path if needed and serves it until
// ctx is done. The pipe is opened read-write so writers may come and go
// without ending the stream.
func (s *Server) ServeFIFO(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := syscall.Mkfifo(path, 0o660); err != nil {
			return fmt.Errorf("failed to create fifo %s: %w", path, err)
		}
	case err != nil:
		return fmt.Errorf("failed to stat %s: %w", path, err)
	case info.Mode()&fs.ModeNamedPipe == 0:
		return fmt.Errorf("%s exists and is not a fifo", path)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to open fifo %s: %w", path, err)
	}
	// Serve closes f when ctx is done
	defer f.Close()

	slog.Info("Reading commands from fifo", "path", path)
	err = s.Serve(ctx, f)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
