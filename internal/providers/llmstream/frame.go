package llmstream

import (
	"encoding/json"
	"fmt"
	"strings"

	"scribedesk/internal/domain"
)

const (
	dataPrefix = "data:"
	doneMarker = "[DONE]"
)

type wireFrame struct {
	Content *string `json:"content"`
	Type    string  `json:"type"`
	Message string  `json:"message"`
}

// DecodeLine turns one line of the event stream into a frame. ok is false for
// lines that carry no frame (blank lines, comments, other SSE fields).
func DecodeLine(line string) (frame domain.Frame, ok bool, err error) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, dataPrefix) {
		return domain.Frame{}, false, nil
	}
	data := strings.TrimPrefix(strings.TrimPrefix(line, dataPrefix), " ")
	if data == doneMarker {
		return domain.Frame{Kind: domain.FrameKindDone}, true, nil
	}

	var wire wireFrame
	if err := json.Unmarshal([]byte(data), &wire); err != nil {
		return domain.Frame{}, false, fmt.Errorf("decode frame: %w", err)
	}

	switch {
	case wire.Type == "error":
		return domain.Frame{Kind: domain.FrameKindError, Text: wire.Message}, true, nil
	case wire.Type == "status":
		return domain.Frame{Kind: domain.FrameKindStatus, Text: wire.Message}, true, nil
	case wire.Content != nil:
		return domain.Frame{Kind: domain.FrameKindContent, Text: *wire.Content}, true, nil
	default:
		return domain.Frame{}, false, nil
	}
}
