package session

import (
	"fmt"
	"os"
	"path/filepath"
)

// persistPiece writes a completed piece's bytes to
// <downloadDir>/<torrentName>_piece_<index>, creating downloadDir if
// needed and truncating any existing file (spec §6). Failure is
// recoverable at the call site — the piece goes back to the queue.
func persistPiece(downloadDir, torrentName string, index uint32, data []byte) error {
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return fmt.Errorf("create download dir %s: %w", downloadDir, err)
	}

	path := filepath.Join(downloadDir, fmt.Sprintf("%s_piece_%d", torrentName, index))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create piece file %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write piece file %s: %w", path, err)
	}
	return nil
}
