// Package httpclient provides the outbound HTTP client used for broker
// calls. It refuses non-HTTP schemes and, unless told otherwise, any host
// that resolves to a loopback, private or otherwise non-routable address.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/teranos/courier/errors"
)

// ErrBlocked marks requests refused before they left the process.
var ErrBlocked = errors.New("outbound request blocked")

const defaultMaxRedirects = 10

// Option configures a Client.
type Option func(*Client)

// AllowPrivateNetworks disables address filtering. Needed when the broker
// runs locally, e.g. the QStash dev server on localhost.
func AllowPrivateNetworks() Option {
	return func(c *Client) { c.blockPrivate = false }
}

// WithMaxRedirects caps how many redirects are followed.
func WithMaxRedirects(n int) Option {
	return func(c *Client) { c.maxRedirects = n }
}

// Client is an *http.Client with outbound address filtering.
type Client struct {
	*http.Client
	schemes      []string
	blockPrivate bool
	maxRedirects int
}

// New creates a client with the given overall request timeout.
func New(timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		Client:       &http.Client{Timeout: timeout},
		schemes:      []string{"http", "https"},
		blockPrivate: true,
		maxRedirects: defaultMaxRedirects,
	}
	for _, o := range opts {
		o(c)
	}

	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= c.maxRedirects {
			return errors.Mark(errors.Newf("stopped after %d redirects", c.maxRedirects), ErrBlocked)
		}
		return errors.Wrap(c.check(req.URL), "redirect")
	}

	if c.blockPrivate {
		dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
		c.Transport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           c.dialPublic(dialer),
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		}
	}
	return c
}

// dialPublic re-checks resolved addresses at dial time, so a hostname that
// later resolves to an internal address is still refused.
func (c *Client) dialPublic(dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, errors.Wrap(err, "invalid address")
		}
		ips, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve %q", host)
		}
		for _, ip := range ips {
			if !isPublic(ip) {
				return nil, errors.Mark(errors.Newf("address %s of %q is not public", ip, host), ErrBlocked)
			}
		}
		return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].String(), port))
	}
}

// Do sends req after checking its URL.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := c.check(req.URL); err != nil {
		return nil, err
	}
	return c.Client.Do(req)
}

// Check reports whether rawURL may be requested.
func (c *Client) Check(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "invalid URL"), ErrBlocked)
	}
	return c.check(u)
}

func (c *Client) check(u *url.URL) error {
	if !slices.Contains(c.schemes, strings.ToLower(u.Scheme)) {
		return errors.Mark(errors.Newf("scheme %q not allowed", u.Scheme), ErrBlocked)
	}
	if u.User != nil {
		return errors.Mark(errors.New("credentials in URL not allowed"), ErrBlocked)
	}
	host := u.Hostname()
	if host == "" {
		return errors.Mark(errors.New("URL has no host"), ErrBlocked)
	}
	if !c.blockPrivate {
		return nil
	}
	if isLocalhost(host) {
		return errors.Mark(errors.Newf("host %q is local", host), ErrBlocked)
	}
	if ip, err := netip.ParseAddr(host); err == nil && !isPublic(ip) {
		return errors.Mark(errors.Newf("address %s is not public", ip), ErrBlocked)
	}
	return nil
}

var nonPublicPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("2001:db8::/32"),
	netip.MustParsePrefix("fec0::/10"),
}

func isPublic(ip netip.Addr) bool {
	ip = ip.Unmap()
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsMulticast() || ip.IsUnspecified() {
		return false
	}
	for _, p := range nonPublicPrefixes {
		if p.Contains(ip) {
			return false
		}
	}
	return true
}

func isLocalhost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	return host == "localhost" || host == "localhost.localdomain" || strings.HasSuffix(host, ".localhost")
}
