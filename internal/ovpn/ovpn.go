// Package ovpn extracts the directives of an OpenVPN client configuration
// that the connection manager cares about: the remote endpoints and the
// protocol they speak. It is not a general OpenVPN parser; unknown
// directives and inline file blocks are skipped.
package ovpn

import (
	"bufio"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"github.com/bitjerkers/linkage/internal/firewall"
)

// DefaultPort is used when a remote directive omits the port.
const DefaultPort uint16 = 1194

// Remote is one resolved remote directive.
type Remote struct {
	Host  string
	Port  uint16
	Proto firewall.Protocol
}

// File holds the extracted directives of one client configuration.
type File struct {
	Remotes []Remote
}

// ParseFile reads and parses an OpenVPN client configuration from disk.
func ParseFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening tunnel config: %w", err)
	}
	defer f.Close()

	parsed, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return parsed, nil
}

// Parse extracts remote and proto directives. Remotes without an explicit
// protocol inherit the file's proto directive, falling back to UDP, which
// is also OpenVPN's own default.
func Parse(r io.Reader) (*File, error) {
	type rawRemote struct {
		host  string
		port  uint16
		proto string
		line  int
	}

	var (
		raws         []rawRemote
		defaultProto string
		inBlock      string
		lineNo       int
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		// Inline file payloads like <ca>...</ca> carry certificate
		// material, not directives.
		if inBlock != "" {
			if line == "</"+inBlock+">" {
				inBlock = ""
			}
			continue
		}
		if strings.HasPrefix(line, "<") && strings.HasSuffix(line, ">") && !strings.HasPrefix(line, "</") {
			inBlock = strings.Trim(line, "<>")
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "proto":
			if len(fields) < 2 {
				return nil, fmt.Errorf("line %d: proto directive without value", lineNo)
			}
			defaultProto = fields[1]
		case "remote":
			if len(fields) < 2 {
				return nil, fmt.Errorf("line %d: remote directive without host", lineNo)
			}
			raw := rawRemote{host: fields[1], port: DefaultPort, line: lineNo}
			if len(fields) >= 3 {
				port, err := strconv.ParseUint(fields[2], 10, 16)
				if err != nil || port == 0 {
					return nil, fmt.Errorf("line %d: invalid remote port %q", lineNo, fields[2])
				}
				raw.port = uint16(port)
			}
			if len(fields) >= 4 {
				raw.proto = fields[3]
			}
			raws = append(raws, raw)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading tunnel config: %w", err)
	}

	if defaultProto == "" {
		defaultProto = "udp"
	}

	file := &File{Remotes: make([]Remote, 0, len(raws))}
	for _, raw := range raws {
		protoStr := raw.proto
		if protoStr == "" {
			protoStr = defaultProto
		}
		proto, err := firewall.ParseProtocol(protoStr)
		if err != nil {
			return nil, fmt.Errorf("line %d: remote %s: %w", raw.line, raw.host, err)
		}
		file.Remotes = append(file.Remotes, Remote{Host: raw.host, Port: raw.port, Proto: proto})
	}
	return file, nil
}

// Exceptions converts the remotes into firewall exceptions. Remotes must
// be literal IP addresses; the kill switch cannot hold a rule open for a
// hostname it cannot resolve once DNS is cut off.
func (f *File) Exceptions() ([]firewall.Exception, error) {
	out := make([]firewall.Exception, 0, len(f.Remotes))
	for _, r := range f.Remotes {
		addr, err := netip.ParseAddr(r.Host)
		if err != nil {
			return nil, fmt.Errorf("remote %q is not an IP address", r.Host)
		}
		out = append(out, firewall.NewException(addr.Unmap(), r.Port, r.Proto))
	}
	return out, nil
}
