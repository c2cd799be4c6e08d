package proxy

import (
	"fmt"
	"net"
	"time"
)

// sendFixedResponse writes a minimal, fully-buffered HTTP response with the
// given status code and reason phrase to conn, looping over Write until the
// whole response is sent or an error occurs. It is used for the handful of
// synthetic responses the proxy itself generates (502 on origin failure,
// 400 on a malformed request) rather than anything read from an origin.
func sendFixedResponse(conn net.Conn, code int, message string, timeout time.Duration) error {
	body := fmt.Sprintf("<html><body><h1>%d %s</h1></body></html>", code, message)
	response := fmt.Sprintf(
		"HTTP/1.1 %d %s\r\nContent-Type: text/html\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		code, message, len(body), body,
	)
	return writeFull(conn, []byte(response), timeout)
}

// writeFull writes all of data to conn, looping over partial writes, and
// applies timeout as the write deadline before each attempt.
func writeFull(conn net.Conn, data []byte, timeout time.Duration) error {
	for len(data) > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
		n, err := conn.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}
