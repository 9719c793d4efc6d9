package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// ErrLinkDown is returned when the configured network interface has no link.
var ErrLinkDown = errors.New("network not connected")

// StatusError is a fetch that completed with a status other than 200.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch error: HTTP %d", e.Code)
}

const maxBodySize = 64 << 10

// Fetcher performs the GET against the command endpoint.
type Fetcher struct {
	client *http.Client
	url    string
	iface  string
	linkUp func(name string) bool
} // type Fetcher struct

// NewFetcher returns a fetcher for endpoint+path. When iface is not empty
// every fetch first checks that the interface has a usable link.
func NewFetcher(endpoint, path, iface string) *Fetcher {
	return &Fetcher{
		client: &http.Client{},
		url:    joinURL(endpoint, path),
		iface:  iface,
		linkUp: linkUp,
	}
} // func NewFetcher

func (f *Fetcher) URL() string {
	return f.url
}

func joinURL(endpoint, path string) string {
	return strings.TrimRight(endpoint, "/") + "/" + strings.TrimLeft(path, "/")
}

// Fetch issues one blocking GET and returns the body on HTTP 200.
// Nothing is retried.
func (f *Fetcher) Fetch(ctx context.Context) (string, error) {
	if f.iface != "" && !f.linkUp(f.iface) {
		return "", fmt.Errorf("%w (%s)", ErrLinkDown, f.iface)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return "", fmt.Errorf("fetch: build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return "", &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("fetch: read body: %w", err)
	}
	return string(body), nil
} // func Fetch

// linkUp reports whether the named interface is up and has a non-loopback
// address.
func linkUp(name string) bool {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return false
	}
	if ifi.Flags&net.FlagUp == 0 {
		return false
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return false
	}
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok && !ipn.IP.IsLoopback() {
			return true
		}
	}
	return false
} // func linkUp
