// Package media turns stored file paths into public URLs.
package media

import (
	"net/url"
	"strings"
)

type URLer struct {
	base *url.URL
}

// New returns a URLer rooted at baseURL. An empty base yields root-relative URLs.
func New(baseURL string) (*URLer, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return &URLer{}, nil
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &URLer{base: u}, nil
}

// URLOf returns nil for an empty path so JSON renders null.
func (m *URLer) URLOf(path string) *string {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return &path
	}
	path = strings.TrimLeft(path, "/")
	if m == nil || m.base == nil {
		out := "/storage/" + path
		return &out
	}
	out := m.base.JoinPath(strings.Split(path, "/")...).String()
	return &out
}
