package rpcurl

import (
	"net"
	"sort"
	"strconv"
	"strings"
	"time"
)

// URL is an immutable service endpoint descriptor: protocol, address,
// optional credentials, path and a parameter bag.
//
// A URL is safe to share between goroutines. Two URLs are equal when their
// canonical strings are equal; use Key as a map key.
type URL struct {
	protocol string
	host     string
	port     int
	username string
	password string
	path     string
	params   map[string]string

	full string
}

// Option configures a URL under construction.
type Option func(*URL)

// WithCredentials sets the username and password.
func WithCredentials(username, password string) Option {
	return func(u *URL) {
		u.username = username
		u.password = password
	}
}

// WithPath sets the path. A leading slash is dropped.
func WithPath(path string) Option {
	return func(u *URL) {
		u.path = strings.TrimPrefix(path, "/")
	}
}

// WithParam sets a single parameter.
func WithParam(key, value string) Option {
	return func(u *URL) {
		u.params[key] = value
	}
}

// WithParams copies every entry of params into the URL.
func WithParams(params map[string]string) Option {
	return func(u *URL) {
		for k, v := range params {
			u.params[k] = v
		}
	}
}

// New builds a URL. The canonical string is computed once here.
func New(protocol, host string, port int, opts ...Option) *URL {
	u := &URL{
		protocol: protocol,
		host:     host,
		port:     port,
		params:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(u)
	}
	u.full = u.format()
	return u
}

// Protocol returns the protocol, e.g. "zk" or "local".
func (u *URL) Protocol() string { return u.protocol }

// Host returns the host.
func (u *URL) Host() string { return u.host }

// Port returns the port.
func (u *URL) Port() int { return u.port }

// Username returns the username, if any.
func (u *URL) Username() string { return u.username }

// Password returns the password, if any.
func (u *URL) Password() string { return u.password }

// Path returns the path without its leading slash.
func (u *URL) Path() string { return u.path }

// Address returns host:port, bracketing IPv6 hosts.
func (u *URL) Address() string {
	return net.JoinHostPort(u.host, strconv.Itoa(u.port))
}

// Addresses returns the primary address followed by any comma-separated
// addresses in the "backup" parameter.
func (u *URL) Addresses() []string {
	addrs := []string{u.Address()}
	for _, a := range strings.Split(u.params[KeyBackup], ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

// Params returns a copy of the parameter bag.
func (u *URL) Params() map[string]string {
	out := make(map[string]string, len(u.params))
	for k, v := range u.params {
		out[k] = v
	}
	return out
}

// HasParam reports whether key is present.
func (u *URL) HasParam(key string) bool {
	_, ok := u.params[key]
	return ok
}

// Param returns the parameter value or defaultVal when absent.
func (u *URL) Param(key, defaultVal string) string {
	if v, ok := u.params[key]; ok {
		return v
	}
	return defaultVal
}

// IntParam returns the parameter parsed as an int, or defaultVal when the
// parameter is absent or not a number.
func (u *URL) IntParam(key string, defaultVal int) int {
	v, ok := u.params[key]
	if !ok {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

// MillisParam reads an integer millisecond parameter as a duration.
func (u *URL) MillisParam(key string, defaultVal time.Duration) time.Duration {
	n := u.IntParam(key, -1)
	if n < 0 {
		return defaultVal
	}
	return time.Duration(n) * time.Millisecond
}

// ServiceName returns the logical service this URL refers to: the
// "interface" parameter, falling back to the path.
func (u *URL) ServiceName() string {
	if name := u.params[KeyInterface]; name != "" {
		return name
	}
	return u.path
}

// With returns a copy of u with opts applied.
func (u *URL) With(opts ...Option) *URL {
	all := make([]Option, 0, len(opts)+3)
	all = append(all,
		WithCredentials(u.username, u.password),
		WithPath(u.path),
		WithParams(u.params),
	)
	all = append(all, opts...)
	return New(u.protocol, u.host, u.port, all...)
}

// String returns the canonical form.
func (u *URL) String() string { return u.full }

// Key returns a value usable as a map key; equal URLs have equal keys.
func (u *URL) Key() string { return u.full }

// Equal reports whether two URLs have the same full field set.
func (u *URL) Equal(other *URL) bool {
	if u == nil || other == nil {
		return u == other
	}
	return u.full == other.full
}

// format renders protocol://[user[:pass]@]host:port[/path][?k=v&...] with
// parameters sorted by key.
func (u *URL) format() string {
	var b strings.Builder
	b.WriteString(u.protocol)
	b.WriteString("://")
	if u.username != "" || u.password != "" {
		b.WriteString(escape(u.username))
		if u.password != "" {
			b.WriteByte(':')
			b.WriteString(escape(u.password))
		}
		b.WriteByte('@')
	}
	b.WriteString(u.Address())
	if u.path != "" {
		b.WriteByte('/')
		b.WriteString(escapePath(u.path))
	}
	if len(u.params) > 0 {
		keys := make([]string, 0, len(u.params))
		for k := range u.params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('?')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte('&')
			}
			b.WriteString(escape(k))
			b.WriteByte('=')
			b.WriteString(escape(u.params[k]))
		}
	}
	return b.String()
}
