package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// userHomeDir is a variable so tests can override it.
var userHomeDir = os.UserHomeDir

// ReadFileTool returns the read_file tool definition.
func ReadFileTool() *Definition {
	return &Definition{
		Name:        "read_file",
		Usage:       "read_file(path)",
		Description: "print the full contents of a file",
		Execute:     executeReadFile,
	}
}

func executeReadFile(ctx context.Context, d *Dispatcher, args string) (string, error) {
	path := cleanArg(args)
	if path == "" {
		return "", fmt.Errorf("%w: read_file requires a path", ErrInvalidFormat)
	}

	absPath := d.resolve(path)
	info, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("file %w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("%w: %v", ErrExecution, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory, use list_dir", ErrExecution, path)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read file: %v", ErrExecution, err)
	}

	return string(content), nil
}
