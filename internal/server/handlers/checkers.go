package handlers

import (
	"context"
	"fmt"
	"os"
)

// DirWritableChecker verifies that Dir exists and accepts new files.
type DirWritableChecker struct {
	Dir string
}

func (c DirWritableChecker) CheckHealth(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st, err := os.Stat(c.Dir)
	if err != nil {
		return fmt.Errorf("stat %s: %w", c.Dir, err)
	}
	if !st.IsDir() {
		return fmt.Errorf("%s is not a directory", c.Dir)
	}
	f, err := os.CreateTemp(c.Dir, ".mqlforge-health-*")
	if err != nil {
		return fmt.Errorf("%s not writable: %w", c.Dir, err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return nil
}

// ExecutableChecker verifies that a compiler executable is present.
type ExecutableChecker struct {
	Path string
}

func (c ExecutableChecker) CheckHealth(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st, err := os.Stat(c.Path)
	if err != nil {
		return fmt.Errorf("compiler executable %s: %w", c.Path, err)
	}
	if st.IsDir() {
		return fmt.Errorf("compiler executable %s is a directory", c.Path)
	}
	return nil
}
