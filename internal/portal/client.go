package portal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/net/publicsuffix"

	appLog "urconnect/internal/log"
)

const defaultAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

// page is a fetched response body decoded to UTF-8.
type page struct {
	body     string
	finalURL *url.URL
	status   int
}

func newHTTPClient(timeout time.Duration) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("portal: unable to create cookie jar: %w", err)
	}
	return &http.Client{Jar: jar, Timeout: timeout}, nil
}

// setCookies stores cookies for the portal origin as the browser's
// scripts would.
func (c *Client) setCookies(pairs ...string) {
	cookies := make([]*http.Cookie, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		cookies = append(cookies, &http.Cookie{Name: pairs[i], Value: pairs[i+1], Path: "/"})
	}
	c.http.Jar.SetCookies(c.base, cookies)
}

// Cookies returns the session cookies for the portal origin.
func (c *Client) Cookies() []*http.Cookie {
	return c.http.Jar.Cookies(c.base)
}

func (c *Client) get(ctx context.Context, target, referer *url.URL) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	c.navigationHeaders(req, referer)
	return c.do(req)
}

func (c *Client) postForm(ctx context.Context, target, referer *url.URL, form url.Values) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.navigationHeaders(req, referer)
	req.Header.Set("Origin", "https://"+c.base.Hostname())
	req.Header.Set("Sec-Fetch-User", "?1")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Cache-Control", "no-cache")
	return c.do(req)
}

// navigationHeaders mimics a top-level browser navigation.
func (c *Client) navigationHeaders(req *http.Request, referer *url.URL) {
	req.Header.Set("Accept", defaultAccept)
	req.Header.Set("Accept-Language", c.opts.AcceptLanguage)
	req.Header.Set("User-Agent", c.opts.UserAgent)
	if referer != nil {
		req.Header.Set("Referer", referer.String())
	}
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	req.Header.Set("Connection", "keep-alive")
}

func (c *Client) do(req *http.Request) (*page, error) {
	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	appLog.Debug("portal request",
		"method", req.Method,
		"url", appLog.RedactURL(req.URL.String()),
		"status", res.StatusCode,
		"bytes", len(raw),
		"elapsed", time.Since(start),
	)

	return &page{
		body:     decodeBody(raw, res.Header.Get("Content-Type")),
		finalURL: res.Request.URL,
		status:   res.StatusCode,
	}, nil
}

// decodeBody converts raw to UTF-8 using the declared charset. Bodies
// without a declared charset that are already valid UTF-8 are kept as is,
// since sniffing only looks at the first kilobyte.
func decodeBody(raw []byte, contentType string) string {
	if _, params, err := mime.ParseMediaType(contentType); err != nil || params["charset"] == "" {
		if utf8.Valid(raw) {
			return string(raw)
		}
	}
	r, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return string(raw)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}
