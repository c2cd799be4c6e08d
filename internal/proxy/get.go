package proxy

import (
	"io"
	"net"
	"strings"
	"time"
)

// handleGet implements the GET pipeline: cache probe, origin fetch on
// miss, request rewrite, response streaming to the client, and conditional
// cache insertion.
func (s *Server) handleGet(client net.Conn, clientID int64, target, headerBlock string) {
	start := time.Now()

	if !strings.Contains(target, "://") {
		s.events.Warn("CLIENT", clientID, "BAD_REQUEST", "GET target is not absolute-form: "+target)
		sendFixedResponse(client, 400, "Bad Request", s.socketTimeout)
		return
	}

	if cached, ok := s.cache.Find(target); ok {
		s.events.Info("CLIENT", clientID, "CACHE_HIT", target)
		if err := writeFull(client, cached, s.socketTimeout); err != nil {
			s.events.Warn("CLIENT", clientID, "SEND_ERROR", err.Error())
		}
		s.logAccess(start, "HIT", 200, "GET", int64(len(cached)), target, "")
		return
	}
	s.events.Info("CLIENT", clientID, "CACHE_MISS", target)

	parts, err := parseAbsoluteURL(target)
	if err != nil {
		s.events.Warn("CLIENT", clientID, "BAD_REQUEST", err.Error())
		sendFixedResponse(client, 400, "Bad Request", s.socketTimeout)
		return
	}

	origin, err := connectOrigin(parts.host, parts.port, s.socketTimeout)
	if err != nil {
		s.events.Error("CLIENT", clientID, "BAD_GATEWAY", err.Error())
		sendFixedResponse(client, 502, "Bad Gateway", s.socketTimeout)
		s.logAccess(start, "MISS", 502, "GET", 0, target, "")
		return
	}
	defer origin.Close()

	rewritten := rewriteRequest(parts, headerBlock)
	if err := writeFull(origin, []byte(rewritten), s.socketTimeout); err != nil {
		s.events.Error("CLIENT", clientID, "ORIGIN_SEND_ERROR", err.Error())
		return
	}

	status, size, cacheable := s.streamAndCapture(client, origin, target, clientID)
	s.logAccess(start, "MISS", status, "GET", size, target, "")
	_ = cacheable
}

// rewriteRequest builds the forwarded request line and headers: a fresh
// "GET <path> HTTP/1.1" request line, an explicit Host header, a forced
// "Connection: close", and every header from the original request except
// Host and Connection (case-insensitive), verbatim.
func rewriteRequest(parts requestParts, headerBlock string) string {
	var b strings.Builder
	b.WriteString("GET ")
	b.WriteString(parts.path)
	b.WriteString(" HTTP/1.1\r\nHost: ")
	b.WriteString(parts.host)
	b.WriteString("\r\nConnection: close\r\n")

	for _, line := range headerLines(headerBlock) {
		if hasHeaderPrefix(line, "Host") || hasHeaderPrefix(line, "Connection") {
			continue
		}
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	return b.String()
}

// streamAndCapture reads the origin's response, forwarding every chunk to
// the client as it arrives while also buffering it (up to the cache's
// per-object limit) for a possible cache insertion once the response
// completes. It returns an approximate status code (always 200 here, since
// the proxy does not parse the origin's status line before streaming), the
// total bytes read from the origin, and whether the response was inserted
// into the cache (only a non-empty response that fit the per-object limit
// and was delivered to the client in full).
func (s *Server) streamAndCapture(client, origin net.Conn, url string, clientID int64) (status int, total int64, cacheable bool) {
	maxBytes := s.cache.MaxBytes()
	captured := make([]byte, 0, min64(maxBytes, recvChunkSize*4))
	overflowed := false
	truncated := false

	chunk := make([]byte, recvChunkSize)
	for {
		if err := origin.SetReadDeadline(time.Now().Add(s.socketTimeout)); err != nil {
			break
		}
		n, err := origin.Read(chunk)
		if n > 0 {
			total += int64(n)
			if werr := writeFull(client, chunk[:n], s.socketTimeout); werr != nil {
				s.events.Warn("CLIENT", clientID, "SEND_ERROR", werr.Error())
				truncated = true
				break
			}
			if !overflowed {
				if int64(len(captured)+n) > maxBytes {
					overflowed = true
					captured = nil
				} else {
					captured = append(captured, chunk[:n]...)
				}
			}
		}
		if err != nil {
			if err != io.EOF {
				s.events.Error("CLIENT", clientID, "ORIGIN_READ_ERROR", err.Error())
			}
			break
		}
	}

	if !overflowed && !truncated && total > 0 {
		s.cache.Add(url, captured)
		cacheable = true
	}
	return 200, total, cacheable
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
