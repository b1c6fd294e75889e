package ai

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// DecodeStream reads a server-sent event body line by line and calls
// onDelta with every non-empty content fragment, in arrival order.
// Lines are buffered across reads, so the outcome does not depend on how the
// transport splits the bytes; a final line without a trailing newline is
// still decoded. Malformed data lines and the [DONE] sentinel are skipped.
// The returned error is nil at a clean end of stream.
func DecodeStream(ctx context.Context, body io.Reader, onDelta func(fragment string)) error {
	reader := bufio.NewReader(body)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := reader.ReadString('\n')
		if line != "" {
			if fragment, ok := parseDataLine(line); ok {
				onDelta(fragment)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// parseDataLine extracts the content fragment of one SSE line.
func parseDataLine(line string) (string, bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false
	}

	payload := line[len(dataPrefix):]
	if payload == doneSentinel {
		return "", false
	}

	var chunk streamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return "", false
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
		return "", false
	}
	return chunk.Choices[0].Delta.Content, true
}
