package relay

import (
	"io"
	"net"
	"time"

	"github.com/SUNET/ais-data-relay/errors"
)

// readLineLimited reads one newline-terminated line from conn, bounded by
// a maximum byte count and a deadline. Oversize input and timeouts are
// rejections, not protocol errors the caller should retry.
func readLineLimited(conn net.Conn, maxBytes int, timeout time.Duration) ([]byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	defer conn.SetReadDeadline(time.Time{})

	buf := make([]byte, 0, 64)
	one := make([]byte, 1)
	for {
		n, err := conn.Read(one)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return nil, errors.ErrAuthTimeout
			}
			if err == io.EOF {
				return nil, errors.ErrConnectionLost
			}
			return nil, err
		}
		if n == 0 {
			continue
		}

		buf = append(buf, one[0])
		if len(buf) > maxBytes {
			return nil, errors.ErrLineTooLong
		}
		if one[0] == '\n' {
			return buf, nil
		}
	}
}
