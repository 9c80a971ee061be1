package lsp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"strings"
)

// maxMessageSize caps one JSON-RPC body. Whole PHP files travel in didOpen
// and didChange, so the limit is generous.
const maxMessageSize = 64 << 20

var (
	errMissingContentLength = errors.New("missing Content-Length header")
	errMessageTooLarge      = fmt.Errorf("message exceeds %d bytes", maxMessageSize)
)

// readMessage reads one Content-Length framed body. Headers other than
// Content-Length are ignored.
func readMessage(r *bufio.Reader) ([]byte, error) {
	length, err := readContentLength(r)
	if err != nil {
		return nil, err
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

func readContentLength(r *bufio.Reader) (int, error) {
	length := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return 0, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(name)) != "Content-Length" {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid Content-Length %q: %w", strings.TrimSpace(value), err)
		}
		if n < 0 {
			return 0, fmt.Errorf("invalid Content-Length %d", n)
		}
		if n > maxMessageSize {
			return 0, errMessageTooLarge
		}
		length = int(n)
	}
	if length < 0 {
		return 0, errMissingContentLength
	}
	return length, nil
}

// writeMessage frames payload with a Content-Length header and writes the
// frame in one call.
func writeMessage(w io.Writer, payload []byte) error {
	frame := make([]byte, 0, len(payload)+32)
	frame = append(frame, "Content-Length: "...)
	frame = strconv.AppendInt(frame, int64(len(payload)), 10)
	frame = append(frame, "\r\n\r\n"...)
	frame = append(frame, payload...)
	_, err := w.Write(frame)
	return err
}
