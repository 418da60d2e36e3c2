package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// ListDirTool returns the list_dir tool definition.
func ListDirTool() *Definition {
	return &Definition{
		Name:         "list_dir",
		Usage:        "list_dir(path)",
		Description:  "list a directory including hidden entries; path defaults to the working directory",
		ArgsOptional: true,
		Execute:      executeListDir,
	}
}

func executeListDir(ctx context.Context, d *Dispatcher, args string) (string, error) {
	path := cleanArg(args)
	if path == "" {
		path = "."
	}

	absPath := d.resolve(path)
	entries, err := os.ReadDir(absPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("directory %w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("%w: %v", ErrExecution, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d entries)\n", absPath, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			// Entry vanished between ReadDir and Info.
			continue
		}

		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		} else if info.Mode()&fs.ModeSymlink != 0 {
			if target, err := os.Readlink(filepath.Join(absPath, entry.Name())); err == nil {
				name += " -> " + target
			}
		}

		fmt.Fprintf(&b, "%s %8s %s %s\n",
			info.Mode().String(),
			humanize.Bytes(uint64(info.Size())),
			info.ModTime().Format("2006-01-02 15:04"),
			name,
		)
	}

	return strings.TrimRight(b.String(), "\n"), nil
}
