package proxy

import "net"

// rawOriginServer is a minimal TCP server used by tests to stand in for an
// origin: it accepts one connection at a time and hands the raw bytes
// written by the client to the supplied handler, which writes the raw
// response bytes back. It exists because the proxy core parses requests
// itself rather than using net/http, so tests need an origin that speaks
// in raw bytes too.
type rawOriginServer struct {
	ln net.Listener
}

// newRawOriginServer starts listening on an ephemeral localhost port and
// runs handle for every accepted connection until the server is closed.
func newRawOriginServer(handle func(net.Conn)) (*rawOriginServer, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &rawOriginServer{ln: ln}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handle(conn)
		}
	}()
	return s, nil
}

func (s *rawOriginServer) Addr() string { return s.ln.Addr().String() }
func (s *rawOriginServer) Close() error { return s.ln.Close() }
