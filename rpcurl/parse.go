package rpcurl

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	rpcerrors "github.com/vinayprograms/rpckit/errors"
)

// Parse reads the canonical form
//
//	protocol://[username[:password]@]host:port[/path][?k1=v1&k2=v2]
//
// Parameter order in the input does not matter; String always renders
// parameters sorted by key, so Parse(u.String()) round-trips exactly.
func Parse(s string) (*URL, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, rpcerrors.InvalidInput("empty url")
	}

	idx := strings.Index(s, "://")
	if idx <= 0 {
		return nil, rpcerrors.InvalidInput("missing protocol", rpcerrors.WithURL(s))
	}
	protocol := s[:idx]
	rest := s[idx+3:]

	var query string
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		query = rest[i+1:]
		rest = rest[:i]
	}

	var path string
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		path = rest[i+1:]
		rest = rest[:i]
	}

	var opts []Option
	if i := strings.LastIndexByte(rest, '@'); i >= 0 {
		userinfo := rest[:i]
		rest = rest[i+1:]

		user, pass, _ := strings.Cut(userinfo, ":")
		var err error
		if user, err = url.QueryUnescape(user); err != nil {
			return nil, rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeInvalidInput, "bad username", rpcerrors.WithURL(s))
		}
		if pass, err = url.QueryUnescape(pass); err != nil {
			return nil, rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeInvalidInput, "bad password", rpcerrors.WithURL(s))
		}
		opts = append(opts, WithCredentials(user, pass))
	}

	host, port, err := splitHostPort(rest)
	if err != nil {
		return nil, rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeInvalidInput, "bad address", rpcerrors.WithURL(s))
	}

	if path != "" {
		if path, err = url.PathUnescape(path); err != nil {
			return nil, rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeInvalidInput, "bad path", rpcerrors.WithURL(s))
		}
		opts = append(opts, WithPath(path))
	}

	if query != "" {
		params := make(map[string]string)
		for _, pair := range strings.Split(query, "&") {
			if pair == "" {
				continue
			}
			k, v, _ := strings.Cut(pair, "=")
			if k, err = url.QueryUnescape(k); err != nil {
				return nil, rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeInvalidInput, "bad parameter key", rpcerrors.WithURL(s))
			}
			if v, err = url.QueryUnescape(v); err != nil {
				return nil, rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeInvalidInput, "bad parameter value", rpcerrors.WithURL(s))
			}
			if k == "" {
				continue
			}
			params[k] = v
		}
		opts = append(opts, WithParams(params))
	}

	return New(protocol, host, port, opts...), nil
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(s string) *URL {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

// splitHostPort accepts "host", "host:port" and "[v6]:port".
func splitHostPort(hostport string) (string, int, error) {
	if hostport == "" {
		return "", 0, nil
	}
	if !strings.Contains(hostport, ":") || (strings.HasPrefix(hostport, "[") && strings.HasSuffix(hostport, "]")) {
		return strings.Trim(hostport, "[]"), 0, nil
	}
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return "", 0, err
	}
	if portStr == "" {
		return host, 0, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	if port < 0 || port > 65535 {
		return "", 0, strconv.ErrRange
	}
	return host, port, nil
}

func escape(s string) string {
	return url.QueryEscape(s)
}

// escapePath escapes each segment of p, keeping the separators.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
