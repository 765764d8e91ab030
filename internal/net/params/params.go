// Package params reads connection parameters from the query string of the
// page that launched the client.
package params

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"

	"siro-hitl/client/internal/assets"
)

const (
	KeyServerHostname  = "server_hostname"
	KeyServerPort      = "server_port"
	KeyServerPortRange = "server_port_range"
	KeyAssetHostname   = "asset_hostname"
	KeyAssetPort       = "asset_port"
	KeyAssetPath       = "asset_path"

	// DefaultServerPort is used for locations that carry no port when no
	// port parameter was given.
	DefaultServerPort = 8888
)

var (
	ErrInvalidHostname = errors.New("params: invalid hostname")
	ErrInvalidPort     = errors.New("params: invalid port")
)

// Params maps query keys to values. Repeated keys are joined with commas.
// A nil Params is empty.
type Params map[string]string

// Parse extracts the parameters of rawURL. Anything other than exactly one
// "?" yields no parameters. Pairs without "=" or with an empty key are
// dropped; values are URL-decoded.
func Parse(rawURL string) Params {
	out := Params{}
	parts := strings.Split(rawURL, "?")
	if len(parts) != 2 {
		return out
	}
	for _, pair := range strings.Split(parts[1], "&") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			continue
		}
		if decoded, err := url.QueryUnescape(value); err == nil {
			value = decoded
		}
		if prev, dup := out[key]; dup {
			value = prev + "," + value
		}
		out[key] = value
	}
	return out
}

// Clone returns a copy that can be extended without touching p.
func (p Params) Clone() Params {
	out := make(Params, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// PortRange is an inclusive range of ports.
type PortRange struct {
	Start int
	End   int
}

// Single returns the range holding only port.
func Single(port int) PortRange {
	return PortRange{Start: port, End: port}
}

func (r PortRange) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Server is the server override requested through parameters. Empty fields
// mean no override.
type Server struct {
	Hostname string
	Ports    *PortRange
}

// Server validates the server hostname and port parameters together. If
// either is invalid, neither is used.
func (p Params) Server() (Server, error) {
	hostname, err := p.ServerHostname()
	if err != nil {
		return Server{}, err
	}
	ports, err := p.ServerPorts()
	if err != nil {
		return Server{}, err
	}
	return Server{Hostname: hostname, Ports: ports}, nil
}

// ServerHostname returns the server_hostname parameter, or "" when absent.
// Hostnames carrying a port are rejected.
func (p Params) ServerHostname() (string, error) {
	return hostname(p, KeyServerHostname)
}

// ServerPorts reads server_port_range ("a-b") or, failing that,
// server_port. It returns nil when neither is present.
func (p Params) ServerPorts() (*PortRange, error) {
	if raw, ok := p[KeyServerPortRange]; ok {
		start, end, found := strings.Cut(raw, "-")
		if !found {
			return nil, fmt.Errorf("%s %q: %w", KeyServerPortRange, raw, ErrInvalidPort)
		}
		a, err := parsePort(start)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", KeyServerPortRange, err)
		}
		b, err := parsePort(end)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", KeyServerPortRange, err)
		}
		if b < a {
			return nil, fmt.Errorf("%s %q is empty: %w", KeyServerPortRange, raw, ErrInvalidPort)
		}
		return &PortRange{Start: a, End: b}, nil
	}
	raw, ok := p[KeyServerPort]
	if !ok {
		return nil, nil
	}
	port, err := parsePort(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeyServerPort, err)
	}
	r := Single(port)
	return &r, nil
}

func (p Params) AssetHostname() (string, error) {
	return hostname(p, KeyAssetHostname)
}

// AssetPort returns the asset_port parameter, or 0 when absent.
func (p Params) AssetPort() (int, error) {
	raw, ok := p[KeyAssetPort]
	if !ok {
		return 0, nil
	}
	port, err := parsePort(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", KeyAssetPort, err)
	}
	return port, nil
}

func (p Params) AssetPath() string {
	return strings.Trim(p[KeyAssetPath], "/")
}

// AssetServer applies the asset_* overrides to base. Invalid overrides are
// reported and skipped individually.
func (p Params) AssetServer(base assets.ServerConfig) (assets.ServerConfig, error) {
	var errs []error
	if host, err := p.AssetHostname(); err != nil {
		errs = append(errs, err)
	} else if host != "" {
		base.Address = host
	}
	if port, err := p.AssetPort(); err != nil {
		errs = append(errs, err)
	} else if port != 0 {
		base.Port = port
	}
	if path := p.AssetPath(); path != "" {
		base.Path = path
	}
	return base, errors.Join(errs...)
}

// CandidateURLs expands server locations into WebSocket URLs. Locations
// without a port get one URL per port of ports.
func CandidateURLs(locations []string, ports PortRange, secure bool) []string {
	scheme := "ws"
	if secure {
		scheme = "wss"
	}
	var out []string
	for _, location := range locations {
		if strings.Contains(location, ":") {
			out = append(out, scheme+"://"+location)
			continue
		}
		for port := ports.Start; port <= ports.End; port++ {
			out = append(out, scheme+"://"+location+":"+strconv.Itoa(port))
		}
	}
	return out
}

func hostname(p Params, key string) (string, error) {
	raw, ok := p[key]
	if !ok {
		return "", nil
	}
	if raw == "" || strings.Contains(raw, ":") {
		return "", fmt.Errorf("%s %q: %w", key, raw, ErrInvalidHostname)
	}
	if _, err := idna.Lookup.ToASCII(raw); err != nil {
		return "", fmt.Errorf("%s %q: %w: %v", key, raw, ErrInvalidHostname, err)
	}
	return raw, nil
}

func parsePort(raw string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || port < 0 || port > 65535 {
		return 0, fmt.Errorf("%q: %w", raw, ErrInvalidPort)
	}
	return port, nil
}
