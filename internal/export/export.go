// Package export renders a transcript into downloadable formats.
package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yamakaho2509/taiwa2/internal/store"
)

// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are
// unavailable.
var ErrDOCXDependencyMissing = errors.New("export docx dependency missing")

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// CSV renders the transcript as a two-column table, one row per message,
// preserving transcript order.
func CSV(displayName string, messages []store.Message) (*Result, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"role", "content", "sequence", "created_at"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, message := range messages {
		record := []string{
			string(message.Role),
			message.Content,
			strconv.FormatInt(message.Sequence, 10),
			message.CreatedAt.Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	return &Result{
		Data:     buf.Bytes(),
		Filename: sanitizeFilename(displayName) + "_対話履歴.csv",
		MimeType: "text/csv",
	}, nil
}

// DOCX renders the transcript as a reflection document via pandoc.
func DOCX(displayName string, messages []store.Message) (*Result, error) {
	html, err := renderTranscriptHTML(displayName, messages)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	return exportDOCX(html, displayName+"_振り返り")
}

func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", ":", "-", "*", "-", "?", "-", "\"", "-", "<", "-", ">", "-", "|", "-")
	cleaned := strings.TrimSpace(replacer.Replace(name))
	if cleaned == "" {
		return "transcript"
	}
	return cleaned
}
