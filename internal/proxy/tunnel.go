package proxy

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// httpsRecvBufferSize bounds each read in the CONNECT relay loop.
const httpsRecvBufferSize = 8192

// idlePollInterval bounds how often copyDirection re-checks for a readable
// socket. It is unrelated to connectIdleTimeout: the tunnel is only torn
// down by the watchdog once *both* directions have gone quiet for that
// long, not when a single direction's poll happens to time out.
const idlePollInterval = time.Second

// handleConnect implements the CONNECT tunnel: it connects to the
// requested origin, replies 200 to the client, then relays bytes in both
// directions until either side closes, errors, or goes idle past
// connectIdleTimeout.
func (s *Server) handleConnect(client net.Conn, clientID int64, target string) {
	start := time.Now()

	parts, err := parseConnectTarget(target)
	if err != nil {
		s.events.Warn("CLIENT", clientID, "BAD_REQUEST", err.Error())
		sendFixedResponse(client, 400, "Bad Request", s.socketTimeout)
		return
	}

	origin, err := connectOrigin(parts.host, parts.port, s.socketTimeout)
	if err != nil {
		s.events.Error("CLIENT", clientID, "CONNECT_FAILED", err.Error())
		return
	}
	defer origin.Close()

	if err := writeFull(client, []byte("HTTP/1.1 200 OK\r\n\r\n"), s.socketTimeout); err != nil {
		s.events.Warn("CLIENT", clientID, "SEND_ERROR", err.Error())
		return
	}

	s.events.Info("CLIENT", clientID, "CONNECT", target)

	total := s.relay(client, origin)

	s.events.Info("CLIENT", clientID, "CONNECT_CLOSED", target, "bytes", total)
	s.logAccess(start, "", 200, "CONNECT", total, target, "")
}

// relay runs one reader goroutine per direction plus a watchdog that tracks
// a single shared last-activity clock, so the tunnel only goes idle once
// *neither* direction has seen a byte for connectIdleTimeout — matching a
// single timer reset by whichever side is readable, rather than two
// independent per-socket deadlines. It returns the total bytes relayed
// across both directions.
func (s *Server) relay(client, origin net.Conn) int64 {
	done := make(chan int64, 2)
	stop := make(chan struct{})

	var lastActivity atomic.Int64
	lastActivity.Store(time.Now().UnixNano())

	var once sync.Once
	closeBoth := func() {
		once.Do(func() {
			client.Close()
			origin.Close()
		})
	}

	go s.watchIdle(&lastActivity, stop, closeBoth)

	go func() {
		done <- s.copyDirection(origin, client, &lastActivity)
		closeBoth()
	}()
	go func() {
		done <- s.copyDirection(client, origin, &lastActivity)
		closeBoth()
	}()

	total := <-done
	total += <-done
	close(stop)
	return total
}

// watchIdle closes both sides of the tunnel once lastActivity has not been
// touched by either direction for connectIdleTimeout.
func (s *Server) watchIdle(lastActivity *atomic.Int64, stop <-chan struct{}, closeBoth func()) {
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			idle := time.Since(time.Unix(0, lastActivity.Load()))
			if idle >= s.connectIdleTimeout {
				closeBoth()
				return
			}
		}
	}
}

// copyDirection reads from src and writes to dst until src is closed or
// errors. A read timeout alone does not end the direction — it only polls
// idlePollInterval so the goroutine can notice watchIdle closing the
// sockets; the shared idle decision belongs to watchIdle, not to this
// direction's own deadline.
func (s *Server) copyDirection(dst, src net.Conn, lastActivity *atomic.Int64) int64 {
	var total int64
	buf := make([]byte, httpsRecvBufferSize)

	for {
		if err := src.SetReadDeadline(time.Now().Add(idlePollInterval)); err != nil {
			return total
		}
		n, err := src.Read(buf)
		if n > 0 {
			lastActivity.Store(time.Now().UnixNano())
			if werr := writeFull(dst, buf[:n], s.socketTimeout); werr != nil {
				return total
			}
			total += int64(n)
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return total
		}
	}
}
