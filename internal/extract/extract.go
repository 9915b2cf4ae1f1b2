// Package extract turns uploaded diary files into plain text.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"unicode/utf8"
)

const (
	MimePlainText = "text/plain"
	MimeDOCX      = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var (
	// ErrUnsupportedFormat is returned for any MIME type other than plain
	// text or wordprocessingml. The upload is rejected whole; no partial
	// document is kept.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrDependencyMissing indicates the pandoc binary is unavailable.
	ErrDependencyMissing = errors.New("extract dependency missing")
)

// Text extracts plain text from an uploaded file by declared MIME type.
func Text(data []byte, mimeType string) (string, error) {
	switch normalizeMime(mimeType) {
	case MimePlainText:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: text upload is not valid UTF-8", ErrUnsupportedFormat)
		}
		return string(data), nil
	case MimeDOCX:
		return extractDOCX(data)
	default:
		return "", ErrUnsupportedFormat
	}
}

// extractDOCX converts a docx payload to plain text using pandoc.
func extractDOCX(data []byte) (string, error) {
	if _, err := exec.LookPath("pandoc"); err != nil {
		return "", fmt.Errorf("%w: pandoc not installed", ErrDependencyMissing)
	}

	cmd := exec.Command("pandoc",
		"-f", "docx",
		"-t", "plain",
		"--wrap", "none",
	)
	cmd.Stdin = bytes.NewReader(data)

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("%w: pandoc: %s", ErrUnsupportedFormat, string(exitErr.Stderr))
		}
		return "", fmt.Errorf("pandoc execution failed: %w", err)
	}
	return string(output), nil
}

func normalizeMime(mimeType string) string {
	// Browsers may append parameters like "; charset=utf-8".
	if idx := strings.IndexByte(mimeType, ';'); idx >= 0 {
		mimeType = mimeType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
