package proxy

import (
	"fmt"
	"strconv"
	"strings"
)

// requestParts is the transient result of parsing a request target: the
// host/port/path a GET or CONNECT needs to reach its origin.
type requestParts struct {
	host string
	port string
	path string
}

// requestLine splits the first line of an HTTP request into its method
// and request target. It returns an error if either of the two spaces
// delimiting method/target/version is missing.
func requestLine(line string) (method, target string, err error) {
	first := strings.IndexByte(line, ' ')
	if first < 0 {
		return "", "", fmt.Errorf("proxy: malformed request line %q", line)
	}
	rest := line[first+1:]
	second := strings.IndexByte(rest, ' ')
	if second < 0 {
		return "", "", fmt.Errorf("proxy: malformed request line %q", line)
	}
	return line[:first], rest[:second], nil
}

// parseAbsoluteURL splits a GET target of the form scheme://authority/path
// into its host, port and path components. The port defaults to "80" when
// the authority carries none. A path-less authority implies path "/".
func parseAbsoluteURL(target string) (requestParts, error) {
	schemeSep := strings.Index(target, "://")
	if schemeSep < 0 {
		return requestParts{}, fmt.Errorf("proxy: not an absolute-form target: %q", target)
	}
	rest := target[schemeSep+3:]

	path := "/"
	authority := rest
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		authority = rest[:slash]
		path = rest[slash:]
	}
	if authority == "" {
		return requestParts{}, fmt.Errorf("proxy: empty authority in target: %q", target)
	}

	host, port, err := splitHostPort(authority, "80")
	if err != nil {
		return requestParts{}, err
	}
	return requestParts{host: host, port: port, path: path}, nil
}

// parseConnectTarget splits a CONNECT target of the form host[:port] into
// host and port, defaulting port to "443" when absent.
func parseConnectTarget(target string) (requestParts, error) {
	host, port, err := splitHostPort(target, "443")
	if err != nil {
		return requestParts{}, err
	}
	return requestParts{host: host, port: port}, nil
}

// splitHostPort splits authority at its last colon into host and port,
// validating the port is all-digit and in [0, 65535]. If authority carries
// no colon, port is defaultPort.
func splitHostPort(authority, defaultPort string) (host, port string, err error) {
	if idx := strings.LastIndexByte(authority, ':'); idx >= 0 {
		host, port = authority[:idx], authority[idx+1:]
	} else {
		host, port = authority, defaultPort
	}
	if host == "" {
		return "", "", fmt.Errorf("proxy: empty host in authority %q", authority)
	}
	if !isValidPort(port) {
		return "", "", fmt.Errorf("proxy: invalid port in authority %q", authority)
	}
	return host, port, nil
}

func isValidPort(port string) bool {
	if port == "" {
		return false
	}
	for _, c := range port {
		if c < '0' || c > '9' {
			return false
		}
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 0 && n <= 65535
}

// hasHeaderPrefix reports whether line is a header line whose name matches
// name (case-insensitive), e.g. hasHeaderPrefix("Host: x", "host").
func hasHeaderPrefix(line, name string) bool {
	if len(line) < len(name)+1 {
		return false
	}
	return strings.EqualFold(line[:len(name)], name) && line[len(name)] == ':'
}

// headerLines splits the header section of a request (everything after the
// request line's terminating "\r\n", up to but excluding the blank line
// that ends the headers) into individual "\r\n"-free lines.
func headerLines(headerBlock string) []string {
	headerBlock = strings.TrimSuffix(headerBlock, "\r\n")
	if headerBlock == "" {
		return nil
	}
	return strings.Split(headerBlock, "\r\n")
}
