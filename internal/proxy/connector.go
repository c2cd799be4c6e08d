package proxy

import (
	"fmt"
	"net"
	"time"
)

// connectOrigin resolves host over IPv4 and dials a TCP connection to
// host:port, applying timeout as both the dial timeout and the
// connection's initial read/write deadline. Any resolution, dial, or
// deadline failure is reported as an error; callers treat this as a
// 502 Bad Gateway for GET and an unrecoverable tunnel failure for CONNECT.
func connectOrigin(host, port string, timeout time.Duration) (net.Conn, error) {
	addr := net.JoinHostPort(host, port)
	conn, err := net.DialTimeout("tcp4", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("proxy: connect to origin %s: %w", addr, err)
	}
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("proxy: set deadline for origin %s: %w", addr, err)
	}
	return conn, nil
}
