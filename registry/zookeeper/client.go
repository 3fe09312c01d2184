package zookeeper

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/google/uuid"
	"github.com/siderolabs/go-retry/retry"

	rpcerrors "github.com/vinayprograms/rpckit/errors"
	"github.com/vinayprograms/rpckit/logging"
	"github.com/vinayprograms/rpckit/rpcurl"
)

const (
	// RootPath prefixes every node this package creates.
	RootPath = "/rpckit"

	DefaultConnectTimeout = 5 * time.Second
	DefaultSessionTimeout = 60 * time.Second

	// Operations are attempted up to DefaultRetries times, DefaultRetryInterval apart,
	// when the connection to the ensemble is lost.
	DefaultRetries       = 3
	DefaultRetryInterval = time.Second
)

// ChildListener is called after the children of a watched path changed.
type ChildListener func(path string)

// Client is the subset of ZooKeeper operations the registry needs. Paths
// are relative to RootPath unless they already start with it.
type Client interface {
	// CreateEphemeralNode creates path, and any missing parents as
	// persistent nodes. An existing node is not an error.
	CreateEphemeralNode(path string) error

	// CreatePersistentNode is CreateEphemeralNode for a persistent node.
	CreatePersistentNode(path string) error

	// RemoveNode deletes path. A missing node is not an error.
	RemoveNode(path string) error

	// GetChildren lists the child names of path, or none if path does not
	// exist.
	GetChildren(path string) ([]string, error)

	// AddListener calls fn whenever the children of path change. Adding a
	// second listener for the same path does nothing.
	AddListener(path string, fn ChildListener) error

	Close() error
}

// BuildPath roots path under RootPath.
func BuildPath(path string) string {
	if path == RootPath || strings.HasPrefix(path, RootPath+"/") {
		return path
	}
	return RootPath + "/" + strings.TrimPrefix(path, "/")
}

// watchHandle is the active subscription for one watched path.
type watchHandle struct {
	id   string
	path string
	stop chan struct{}
}

// SessionClient is a Client backed by one ZooKeeper session.
type SessionClient struct {
	conn   *zk.Conn
	logger *logging.Logger
	acl    []zk.ACL

	retries       int
	retryInterval time.Duration

	mu        sync.Mutex
	listeners map[string]*watchHandle
	closed    bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewSessionClient connects to the ensemble named by u and blocks until a
// session is established. The "timeout" and "zk.sessionTimeoutMs" URL
// parameters override the default timeouts; a "backup" parameter adds
// servers. Credentials in u are sent as a digest auth.
func NewSessionClient(u *rpcurl.URL) (*SessionClient, error) {
	connectTimeout := u.MillisParam(rpcurl.KeyTimeout, DefaultConnectTimeout)
	sessionTimeout := u.MillisParam(rpcurl.KeySessionTimeout, DefaultSessionTimeout)
	logger := logging.Default().WithComponent("zookeeper")

	conn, events, err := zk.Connect(u.Addresses(), sessionTimeout, zk.WithLogger(logger))
	if err != nil {
		return nil, rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeCoordination, "connect failed",
			rpcerrors.WithMetadata("servers", strings.Join(u.Addresses(), ",")))
	}

	if err := awaitSession(events, connectTimeout); err != nil {
		conn.Close()
		return nil, rpcerrors.Wrap(err, "zookeeper session not established",
			rpcerrors.WithMetadata("servers", strings.Join(u.Addresses(), ",")))
	}

	if u.Username() != "" || u.Password() != "" {
		if err := conn.AddAuth("digest", []byte(u.Username()+":"+u.Password())); err != nil {
			conn.Close()
			return nil, rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeCoordination, "digest auth failed")
		}
	}

	c := &SessionClient{
		conn:          conn,
		logger:        logger,
		acl:           zk.WorldACL(zk.PermAll),
		retries:       DefaultRetries,
		retryInterval: DefaultRetryInterval,
		listeners:     make(map[string]*watchHandle),
		done:          make(chan struct{}),
	}

	c.wg.Add(1)
	go c.watchSession(events)

	logger.Info("session established", map[string]interface{}{
		"servers":         strings.Join(u.Addresses(), ","),
		"session_timeout": sessionTimeout.String(),
	})
	return c, nil
}

func awaitSession(events <-chan zk.Event, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return rpcerrors.Coordination("connection closed while waiting for session")
			}
			if ev.State == zk.StateHasSession {
				return nil
			}
		case <-timer.C:
			return rpcerrors.Timeout("no session after " + timeout.String())
		}
	}
}

// watchSession drains session events until the connection is closed.
func (c *SessionClient) watchSession(events <-chan zk.Event) {
	defer c.wg.Done()
	for ev := range events {
		if ev.Type != zk.EventSession {
			continue
		}
		fields := map[string]interface{}{"state": ev.State.String(), "server": ev.Server}
		switch ev.State {
		case zk.StateExpired, zk.StateDisconnected:
			c.logger.Warn("session state changed", fields)
		default:
			c.logger.Debug("session state changed", fields)
		}
	}
}

// CreateEphemeralNode creates an ephemeral node at path.
func (c *SessionClient) CreateEphemeralNode(path string) error {
	return c.create(BuildPath(path), zk.FlagEphemeral)
}

// CreatePersistentNode creates a persistent node at path.
func (c *SessionClient) CreatePersistentNode(path string) error {
	return c.create(BuildPath(path), 0)
}

func (c *SessionClient) create(full string, flags int32) error {
	return c.do("create", full, func() error {
		if err := c.createParents(full); err != nil {
			return err
		}
		_, err := c.conn.Create(full, nil, flags, c.acl)
		if errors.Is(err, zk.ErrNodeExists) {
			c.logger.Warn("node already exists", map[string]interface{}{"path": full})
			return nil
		}
		return err
	})
}

func (c *SessionClient) createParents(full string) error {
	parts := strings.Split(strings.Trim(full, "/"), "/")
	parent := ""
	for _, part := range parts[:len(parts)-1] {
		parent += "/" + part
		_, err := c.conn.Create(parent, nil, 0, c.acl)
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return err
		}
	}
	return nil
}

// RemoveNode deletes the node at path.
func (c *SessionClient) RemoveNode(path string) error {
	full := BuildPath(path)
	return c.do("delete", full, func() error {
		err := c.conn.Delete(full, -1)
		if errors.Is(err, zk.ErrNoNode) {
			return nil
		}
		return err
	})
}

// GetChildren lists the children of path.
func (c *SessionClient) GetChildren(path string) ([]string, error) {
	full := BuildPath(path)
	var children []string
	err := c.do("children", full, func() error {
		var err error
		children, _, err = c.conn.Children(full)
		if errors.Is(err, zk.ErrNoNode) {
			children = []string{}
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return children, nil
}

// AddListener starts watching the children of path.
func (c *SessionClient) AddListener(path string, fn ChildListener) error {
	full := BuildPath(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return rpcerrors.Closed("zookeeper client closed", rpcerrors.WithPath(full))
	}
	if _, ok := c.listeners[full]; ok {
		return nil
	}

	h := &watchHandle{id: uuid.NewString(), path: full, stop: make(chan struct{})}
	c.listeners[full] = h

	c.wg.Add(1)
	go c.watchChildren(h, fn)

	c.logger.Debug("listener added", map[string]interface{}{"path": full, "watch_id": h.id})
	return nil
}

// RemoveListener stops watching path.
func (c *SessionClient) RemoveListener(path string) {
	full := BuildPath(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	if h, ok := c.listeners[full]; ok {
		close(h.stop)
		delete(c.listeners, full)
	}
}

// watchChildren re-arms the one-shot ZooKeeper watch on h.path after every
// event. A path that does not exist yet is watched for creation instead.
// fn runs once after the first watch is armed, since children may have
// changed between the caller's last read and the arm.
func (c *SessionClient) watchChildren(h *watchHandle, fn ChildListener) {
	defer c.wg.Done()

	resync := true
	for {
		_, _, ch, err := c.conn.ChildrenW(h.path)
		if errors.Is(err, zk.ErrNoNode) {
			var exists bool
			exists, _, ch, err = c.conn.ExistsW(h.path)
			if err == nil && exists {
				// Created since ChildrenW; an exists watch would miss its children.
				continue
			}
		}
		if err != nil {
			if errors.Is(err, zk.ErrClosing) {
				return
			}
			c.logger.Warn("watch failed", map[string]interface{}{"path": h.path, "error": err.Error()})
			resync = true
			if !c.sleep(h, c.retryInterval) {
				return
			}
			continue
		}

		if resync {
			// Events may have been missed while the watch was down.
			resync = false
			fn(h.path)
		}

		select {
		case ev := <-ch:
			if ev.Type == zk.EventNotWatching {
				resync = true
				if !c.sleep(h, c.retryInterval) {
					return
				}
				continue
			}
			c.logger.WatchEvent(h.path, ev.Type.String())
			fn(h.path)
		case <-h.stop:
			return
		case <-c.done:
			return
		}
	}
}

// sleep waits for d and reports false if the watch was stopped meanwhile.
func (c *SessionClient) sleep(h *watchHandle, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-h.stop:
		return false
	case <-c.done:
		return false
	}
}

// do runs op, retrying while the connection is down.
func (c *SessionClient) do(op, path string, fn func() error) error {
	if c.isClosed() {
		return rpcerrors.Closed("zookeeper client closed", rpcerrors.WithPath(path))
	}

	window := time.Duration(c.retries) * c.retryInterval
	err := retry.Constant(window, retry.WithUnits(c.retryInterval)).Retry(func() error {
		err := fn()
		if isConnectionError(err) {
			return retry.ExpectedError(err)
		}
		return err
	})
	if err != nil {
		c.logger.OperationFailed(op, err, map[string]interface{}{"path": path})
		return rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeCoordination, op+" "+path+" failed",
			rpcerrors.WithPath(path))
	}
	return nil
}

func isConnectionError(err error) bool {
	return errors.Is(err, zk.ErrConnectionClosed) ||
		errors.Is(err, zk.ErrNoServer) ||
		errors.Is(err, zk.ErrSessionMoved)
}

func (c *SessionClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close stops all listeners and ends the session, which removes every
// ephemeral node it created.
func (c *SessionClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.listeners = make(map[string]*watchHandle)
	close(c.done)
	c.mu.Unlock()

	c.conn.Close()
	c.wg.Wait()
	c.logger.Info("session closed")
	return nil
}

var _ Client = (*SessionClient)(nil)
