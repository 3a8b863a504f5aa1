package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/die-net/linerelay/internal/target"
)

// MaxLineBytes bounds a request line or header line, terminator included.
const MaxLineBytes = 64 * 1024

var ErrLineTooLong = errors.New("line too long")

// readLine returns the next line from br including its terminator.
//
// It returns io.EOF if the stream ends before any byte of the line and
// io.ErrUnexpectedEOF, along with the partial line, if it ends mid-line.
func readLine(br *bufio.Reader) (string, error) {
	var line []byte
	for {
		frag, err := br.ReadSlice('\n')
		if len(line)+len(frag) > MaxLineBytes {
			return "", ErrLineTooLong
		}
		line = append(line, frag...)

		switch {
		case err == nil:
			return string(line), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(line) == 0 {
				return "", io.EOF
			}
			return string(line), io.ErrUnexpectedEOF
		default:
			return "", err
		}
	}
}

// readRequestLine reads a line expected to start a request. An oversized
// line is reported as a malformed request line.
func readRequestLine(br *bufio.Reader) (string, error) {
	line, err := readLine(br)
	if errors.Is(err, ErrLineTooLong) {
		err = fmt.Errorf("%w: %w", target.ErrMalformedRequestLine, err)
	}
	return line, err
}

// isClientEOF reports whether err means the client stopped sending.
func isClientEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// isBlankLine reports whether line is the empty line ending a header block.
// A bare LF is accepted as well as CRLF.
func isBlankLine(line string) bool {
	return line == "\r\n" || line == "\n"
}

// parseContentLength returns the value of a Content-Length header line.
func parseContentLength(line string) (int64, bool) {
	name, value, ok := strings.Cut(line, ":")
	if !ok || !strings.EqualFold(name, "Content-Length") {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
