// Package client is the Go client for a wstore server. It mirrors the four
// storage operations and maps responses to results or typed errors.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultBaseURL is used when New is given an empty base URL.
const DefaultBaseURL = "http://localhost:4500/"

// Client talks to one wstore server.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	username  string
	password  string
	hasCred   bool
	headerOut io.Writer
}

// Option configures a Client.
type Option func(*Client)

// WithCredential sets the username and password attached to Post, Put and Delete.
func WithCredential(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
		c.hasCred = true
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithHeaderOutput makes every call write the response headers to w before
// the body is handled.
func WithHeaderOutput(w io.Writer) Option {
	return func(c *Client) {
		c.headerOut = w
	}
}

// New creates a Client for baseURL. Remote paths are resolved relative to it,
// so a base of http://host/files addresses http://host/files/<remote>.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("client: base url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("client: base url %q: missing host", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
		if u.RawPath != "" {
			u.RawPath += "/"
		}
	}
	u.RawQuery, u.Fragment = "", ""

	c := &Client{
		baseURL: u,
		http:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ParseCredential splits "username:password". The password may contain colons.
func ParseCredential(s string) (username, password string, err error) {
	username, password, ok := strings.Cut(s, ":")
	if !ok || username == "" {
		return "", "", fmt.Errorf("client: credential must be username:password")
	}
	return username, password, nil
}

// Result is the outcome of a successful mutation.
type Result struct {
	StatusCode int
	Message    string
	Header     http.Header
}

// Created reports whether the call created a new resource.
func (r *Result) Created() bool {
	return r.StatusCode == http.StatusCreated
}

// URL returns the absolute URL for remote under the base path. The path is
// escaped but never cleaned: dot segments are percent-encoded so they reach
// the server as written and are rejected there.
func (c *Client) URL(remote string) string {
	segments := strings.Split(strings.TrimLeft(remote, "/"), "/")
	for i, s := range segments {
		segments[i] = escapeSegment(s)
	}
	u := *c.baseURL
	u.RawPath = strings.TrimSuffix(c.baseURL.EscapedPath(), "/") + "/" + strings.Join(segments, "/")
	u.Path, _ = url.PathUnescape(u.RawPath)
	return u.String()
}

func escapeSegment(s string) string {
	switch s {
	case ".":
		return "%2E"
	case "..":
		return "%2E%2E"
	}
	return url.PathEscape(s)
}

// Get fetches remote. When dest is non-empty the body is written to that
// file, creating parent directories, and the returned content is nil.
func (c *Client) Get(ctx context.Context, remote, dest string) ([]byte, error) {
	resp, err := c.send(ctx, http.MethodGet, remote, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.check(resp); err != nil {
		return nil, err
	}
	if dest == "" {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &TransportError{Op: http.MethodGet, URL: resp.Request.URL.String(), Err: err}
		}
		return data, nil
	}
	if err := saveTo(dest, resp.Body); err != nil {
		return nil, err
	}
	return nil, nil
}

// Post uploads local to remote, failing with a 409 RemoteError if remote exists.
func (c *Client) Post(ctx context.Context, local, remote string) (*Result, error) {
	return c.upload(ctx, http.MethodPost, local, remote)
}

// Put uploads local to remote, replacing any existing file.
func (c *Client) Put(ctx context.Context, local, remote string) (*Result, error) {
	return c.upload(ctx, http.MethodPut, local, remote)
}

// Delete removes remote.
func (c *Client) Delete(ctx context.Context, remote string) (*Result, error) {
	resp, err := c.send(ctx, http.MethodDelete, remote, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return c.result(resp)
}

func (c *Client) upload(ctx context.Context, method, local, remote string) (*Result, error) {
	content, err := os.ReadFile(local)
	if err != nil {
		return nil, fmt.Errorf("client: read %s: %w: %w", local, ErrLocalFileMissing, err)
	}
	resp, err := c.send(ctx, method, remote, content)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return c.result(resp)
}

// send builds and executes one request. The credential is attached to every
// verb except GET. Bodies are always sent as application/octet-stream.
func (c *Client) send(ctx context.Context, method, remote string, body []byte) (*http.Response, error) {
	target := c.URL(remote)

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, &TransportError{Op: method, URL: target, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	if c.hasCred && method != http.MethodGet {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: method, URL: target, Err: err}
	}
	if c.headerOut != nil {
		if err := writeHeaders(c.headerOut, resp.Header); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("client: write headers: %w", err)
		}
	}
	return resp, nil
}

// check turns a non-2xx response into a RemoteError carrying the body text.
func (c *Client) check(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: resp.Request.Method, URL: resp.Request.URL.String(), Err: err}
	}
	return &RemoteError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
}

func (c *Client) result(resp *http.Response) (*Result, error) {
	if err := c.check(resp); err != nil {
		return nil, err
	}
	msg, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: resp.Request.Method, URL: resp.Request.URL.String(), Err: err}
	}
	return &Result{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(msg)),
		Header:     resp.Header,
	}, nil
}

func writeHeaders(w io.Writer, h http.Header) error {
	var b strings.Builder
	b.WriteString("HTTP Response Headers:\n")
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		for _, v := range h[k] {
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		}
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func saveTo(dest string, body io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("client: create %s: %w", filepath.Dir(dest), err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("client: create %s: %w", dest, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(dest)
		return fmt.Errorf("client: save %s: %w", dest, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("client: close %s: %w", dest, err)
	}
	return nil
}
