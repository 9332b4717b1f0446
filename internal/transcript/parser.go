package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	// maxLineSize bounds a single transcript line. Tool results can embed
	// whole files, so the default scanner limit is far too small. Longer
	// lines are skipped.
	maxLineSize = 10 * 1024 * 1024

	// initialBufSize is the size of the read buffer.
	initialBufSize = 64 * 1024
)

// ErrNotFound is returned when the transcript file does not exist.
var ErrNotFound = errors.New("transcript not found")

// rawEntry mirrors the on-disk JSON of a transcript line.
type rawEntry struct {
	UUID       string      `json:"uuid"`
	ParentUUID *string     `json:"parentUuid"`
	Type       string      `json:"type"`
	AgentID    string      `json:"agentId"`
	SessionID  string      `json:"sessionId"`
	Timestamp  string      `json:"timestamp"`
	Message    *rawMessage `json:"message"`
}

type rawMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type rawBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     map[string]any  `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

// ParseEntry decodes a single transcript line.
func ParseEntry(line []byte) (Entry, error) {
	var raw rawEntry
	if err := json.Unmarshal(line, &raw); err != nil {
		return Entry{}, fmt.Errorf("decode entry: %w", err)
	}

	entry := Entry{
		UUID:       raw.UUID,
		ParentUUID: raw.ParentUUID,
		Type:       raw.Type,
		AgentID:    raw.AgentID,
		SessionID:  raw.SessionID,
		Timestamp:  raw.Timestamp,
	}

	if raw.Message == nil {
		return entry, nil
	}

	entry.Role = Role(raw.Message.Role)

	blocks, err := decodeContent(raw.Message.Content)
	if err != nil {
		return Entry{}, err
	}
	entry.Content = blocks

	return entry, nil
}

// decodeContent accepts either a plain string or an array of content blocks.
func decodeContent(data json.RawMessage) ([]ContentBlock, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	if data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return nil, fmt.Errorf("decode text content: %w", err)
		}

		return []ContentBlock{{Type: BlockText, Text: text}}, nil
	}

	var raws []rawBlock
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode content blocks: %w", err)
	}

	blocks := make([]ContentBlock, 0, len(raws))
	for _, rb := range raws {
		blocks = append(blocks, ContentBlock{
			Type:      rb.Type,
			Text:      rb.Text,
			ID:        rb.ID,
			Name:      rb.Name,
			Input:     rb.Input,
			ToolUseID: rb.ToolUseID,
			Result:    resultText(rb.Content),
			IsError:   rb.IsError,
		})
	}

	return blocks, nil
}

// resultText flattens a tool_result content value, which is either a string
// or a list of text blocks.
func resultText(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		return text
	}

	var parts []rawBlock
	if err := json.Unmarshal(data, &parts); err != nil {
		return ""
	}

	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Type == BlockText {
			texts = append(texts, p.Text)
		}
	}

	return strings.Join(texts, "\n")
}

// Parse reads the transcript at path and analyses it. A missing file yields
// an error wrapping ErrNotFound. Lines that are not valid JSON are skipped.
func Parse(path string) (*Analysis, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	return ParseReader(f)
}

// ParseReader analyses a transcript read from r.
func ParseReader(r io.Reader) (*Analysis, error) {
	analysis := &Analysis{}
	err := eachLine(r, func(line []byte, tooLong bool) {
		if tooLong {
			analysis.SkippedLines++
			return
		}

		// A line may be cut short while the host is still writing it.
		entry, err := ParseEntry(line)
		if err != nil {
			analysis.SkippedLines++
			return
		}

		analysis.add(entry)
	})
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	return analysis, nil
}

// eachLine calls visit for every non-blank line of r, trimmed of surrounding
// whitespace. A line longer than maxLineSize is drained and reported with
// tooLong set and no content.
func eachLine(r io.Reader, visit func(line []byte, tooLong bool)) error {
	br := bufio.NewReaderSize(r, initialBufSize)

	var (
		buf     []byte
		tooLong bool
	)
	emit := func() {
		line := bytes.TrimSpace(buf)
		switch {
		case tooLong:
			visit(nil, true)
		case len(line) > 0:
			visit(line, false)
		}
		buf, tooLong = buf[:0], false
	}

	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return err
			}

			// The last line may lack a trailing newline.
			if len(buf) > 0 || tooLong {
				emit()
			}

			return nil
		}

		if !tooLong {
			if len(buf)+len(chunk) > maxLineSize {
				buf, tooLong = buf[:0], true
			} else {
				buf = append(buf, chunk...)
			}
		}

		if !isPrefix {
			emit()
		}
	}
}
