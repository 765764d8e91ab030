package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"siro-hitl/client/internal/async"
)

// ServerConfig locates the asset server. Assets are served at
// {Protocol}://{Address}:{Port}/{Path}/{address}{Extension}.
type ServerConfig struct {
	Protocol  string `yaml:"protocol"`
	Address   string `yaml:"address"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Extension string `yaml:"extension"`
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Protocol:  "http",
		Address:   "127.0.0.1",
		Port:      9999,
		Extension: ".glb",
	}
}

// BaseURL renders the URL prefix every asset address is appended to.
func (c ServerConfig) BaseURL() string {
	base := fmt.Sprintf("%s://%s:%d/", c.Protocol, c.Address, c.Port)
	if p := strings.Trim(c.Path, "/"); p != "" {
		base += p + "/"
	}
	return base
}

// HTTPResolver fetches assets from an HTTP asset server.
type HTTPResolver struct {
	cfg    ServerConfig
	client *http.Client
}

func NewHTTPResolver(cfg ServerConfig, client *http.Client) *HTTPResolver {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &HTTPResolver{cfg: cfg, client: client}
}

// URL returns the location of address on the asset server.
func (r *HTTPResolver) URL(address string) string {
	segments := strings.Split(address, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return r.cfg.BaseURL() + strings.Join(segments, "/") + r.cfg.Extension
}

func (r *HTTPResolver) Locate(address string) async.Operation[bool] {
	ctx, cancel := context.WithCancel(context.Background())
	return async.Go(cancel, func(*async.Future[bool]) (bool, error) {
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, r.URL(address), nil)
		if err != nil {
			return false, fmt.Errorf("locate %s: %w", address, err)
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return false, fmt.Errorf("locate %s: %w", address, err)
		}
		resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return false, nil
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return true, nil
		default:
			return false, fmt.Errorf("locate %s: unexpected status %s", address, resp.Status)
		}
	})
}

func (r *HTTPResolver) Load(address string) async.Operation[Asset] {
	ctx, cancel := context.WithCancel(context.Background())
	return async.Go(cancel, func(f *async.Future[Asset]) (Asset, error) {
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL(address), nil)
		if err != nil {
			return Asset{}, fmt.Errorf("load %s: %w", address, err)
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return Asset{}, fmt.Errorf("load %s: %w", address, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return Asset{}, fmt.Errorf("load %s: %w", address, ErrNotFound)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return Asset{}, fmt.Errorf("load %s: unexpected status %s", address, resp.Status)
		}
		data, err := readWithProgress(resp.Body, resp.ContentLength, f.SetProgress)
		if err != nil {
			return Asset{}, fmt.Errorf("load %s: %w", address, err)
		}
		bones, err := SkinJointNames(data)
		if err != nil {
			return Asset{}, fmt.Errorf("load %s: %w", address, err)
		}
		return Asset{Address: address, Bones: bones, Size: int64(len(data))}, nil
	})
}

// maxPrealloc bounds the buffer reserved up front from Content-Length.
const maxPrealloc = 8 << 20

func readWithProgress(body io.Reader, total int64, report func(float32)) ([]byte, error) {
	if total <= 0 {
		return io.ReadAll(body)
	}
	data := make([]byte, 0, min(total, maxPrealloc))
	buf := make([]byte, 32*1024)
	for {
		n, err := body.Read(buf)
		data = append(data, buf[:n]...)
		report(min(float32(len(data))/float32(total), 1))
		if err == io.EOF {
			return data, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
