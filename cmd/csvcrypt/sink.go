package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// fileSink writes a download into a directory.
type fileSink struct {
	dir  string
	path string // set after Deliver
}

func (s *fileSink) Deliver(filename, _ string, content []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(s.dir, filepath.Base(filename))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}

	s.path = path
	return nil
}
