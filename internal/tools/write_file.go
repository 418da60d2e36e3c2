package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// WriteFileTool returns the write_file tool definition.
func WriteFileTool() *Definition {
	return &Definition{
		Name:        "write_file",
		Usage:       "write_file(path, content)",
		Description: `create or overwrite a file; everything after the first comma is written verbatim, unless it is one double-quoted string, which is decoded with Go escapes (\n newline, \\ backslash, \" quote)`,
		Execute:     executeWriteFile,
	}
}

func executeWriteFile(ctx context.Context, d *Dispatcher, args string) (string, error) {
	rawPath, content, ok := splitFirst(args)
	if !ok {
		return "", fmt.Errorf("%w: write_file requires path and content separated by a comma", ErrInvalidFormat)
	}

	path := cleanArg(rawPath)
	if path == "" {
		return "", fmt.Errorf("%w: write_file requires a path", ErrInvalidFormat)
	}
	content = decodeContent(strings.TrimLeft(content, " \t\r\n"))

	absPath := d.resolve(path)
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return "", fmt.Errorf("%w: failed to create parent directories: %v", ErrExecution, err)
	}
	if err := os.WriteFile(absPath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("%w: failed to write file: %v", ErrExecution, err)
	}

	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}

// decodeContent unquotes content written as a single double-quoted string.
// Anything else, including text that merely starts with a quote, is kept as is.
func decodeContent(content string) string {
	trimmed := strings.TrimRight(content, " \t\r\n")
	if len(trimmed) < 2 || trimmed[0] != '"' || trimmed[len(trimmed)-1] != '"' {
		return content
	}
	if decoded, err := strconv.Unquote(trimmed); err == nil {
		return decoded
	}
	return content
}
