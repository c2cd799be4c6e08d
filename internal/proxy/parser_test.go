package proxy

import "testing"

func TestRequestLine(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		method, target, err := requestLine("GET http://example.com/ HTTP/1.1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if method != "GET" || target != "http://example.com/" {
			t.Fatalf("got method=%q target=%q", method, target)
		}
	})

	t.Run("missing second space", func(t *testing.T) {
		if _, _, err := requestLine("GET http://example.com/"); err == nil {
			t.Fatal("expected error for missing HTTP version")
		}
	})

	t.Run("missing first space", func(t *testing.T) {
		if _, _, err := requestLine("GET"); err == nil {
			t.Fatal("expected error for missing target")
		}
	})
}

func TestParseAbsoluteURL(t *testing.T) {
	cases := []struct {
		name       string
		target     string
		host, port, path string
		wantErr    bool
	}{
		{"path and port", "http://example.com:8080/foo/bar", "example.com", "8080", "/foo/bar", false},
		{"no path", "http://example.com", "example.com", "80", "/", false},
		{"no port", "http://example.com/foo", "example.com", "80", "/foo", false},
		{"trailing slash only", "http://example.com/", "example.com", "80", "/", false},
		{"not absolute", "/just/a/path", "", "", "", true},
		{"empty authority", "http:///foo", "", "", "", true},
		{"bad port", "http://example.com:notaport/", "", "", "", true},
		{"port out of range", "http://example.com:99999/", "", "", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parts, err := parseAbsoluteURL(tc.target)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.target)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if parts.host != tc.host || parts.port != tc.port || parts.path != tc.path {
				t.Errorf("got %+v, want host=%q port=%q path=%q", parts, tc.host, tc.port, tc.path)
			}
		})
	}
}

func TestParseConnectTarget(t *testing.T) {
	t.Run("explicit port", func(t *testing.T) {
		parts, err := parseConnectTarget("example.com:8443")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if parts.host != "example.com" || parts.port != "8443" {
			t.Errorf("got %+v", parts)
		}
	})

	t.Run("default port", func(t *testing.T) {
		parts, err := parseConnectTarget("example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if parts.host != "example.com" || parts.port != "443" {
			t.Errorf("got %+v, want default port 443", parts)
		}
	})

	t.Run("invalid port", func(t *testing.T) {
		if _, err := parseConnectTarget("example.com:notaport"); err == nil {
			t.Fatal("expected error for invalid port")
		}
	})
}

func TestHasHeaderPrefix(t *testing.T) {
	cases := []struct {
		line, name string
		want       bool
	}{
		{"Host: example.com", "Host", true},
		{"host: example.com", "Host", true},
		{"HOST: example.com", "Host", true},
		{"Connection: close", "Host", false},
		{"Hostile: x", "Host", false},
		{"Host", "Host", false},
	}
	for _, tc := range cases {
		if got := hasHeaderPrefix(tc.line, tc.name); got != tc.want {
			t.Errorf("hasHeaderPrefix(%q, %q) = %v, want %v", tc.line, tc.name, got, tc.want)
		}
	}
}

func TestHeaderLines(t *testing.T) {
	block := "Accept: */*\r\nUser-Agent: test\r\n"
	lines := headerLines(block)
	if len(lines) != 2 || lines[0] != "Accept: */*" || lines[1] != "User-Agent: test" {
		t.Fatalf("got %#v", lines)
	}

	if lines := headerLines(""); lines != nil {
		t.Fatalf("expected nil for empty header block, got %#v", lines)
	}
}
