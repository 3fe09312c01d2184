package zookeeper

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinayprograms/rpckit/rpcurl"
)

// newLiveClient connects to the ensemble at ZK_URL, skipping the test when
// none is configured.
func newLiveClient(t *testing.T) *SessionClient {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping ZooKeeper test in short mode")
	}
	raw := os.Getenv("ZK_URL")
	if raw == "" {
		t.Skip("ZK_URL not set")
	}
	u, err := rpcurl.Parse(raw)
	require.NoError(t, err)

	c, err := NewSessionClient(u.With(rpcurl.WithParam(rpcurl.KeyTimeout, "2000")))
	if err != nil {
		t.Skipf("ZooKeeper not available: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSessionClient_Nodes(t *testing.T) {
	c := newLiveClient(t)
	base := "/client-test-" + time.Now().Format("150405.000000")
	defer c.RemoveNode(base)

	children, err := c.GetChildren(base)
	require.NoError(t, err)
	assert.Empty(t, children)

	require.NoError(t, c.CreateEphemeralNode(base+"/a"))
	require.NoError(t, c.CreateEphemeralNode(base+"/a"))
	require.NoError(t, c.CreateEphemeralNode(base+"/b"))

	children, err = c.GetChildren(base)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, children)

	require.NoError(t, c.RemoveNode(base+"/a"))
	require.NoError(t, c.RemoveNode(base+"/a"))

	children, err = c.GetChildren(base)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, children)
	require.NoError(t, c.RemoveNode(base+"/b"))
}

func TestSessionClient_Listener(t *testing.T) {
	c := newLiveClient(t)
	base := "/listener-test-" + time.Now().Format("150405.000000")
	defer c.RemoveNode(base)

	fired := make(chan string, 16)
	require.NoError(t, c.AddListener(base, func(p string) { fired <- p }))
	require.NoError(t, c.AddListener(base, func(string) { t.Error("second listener must not be added") }))

	require.NoError(t, c.CreatePersistentNode(base))
	require.NoError(t, c.CreateEphemeralNode(base+"/child"))

	select {
	case p := <-fired:
		assert.Equal(t, BuildPath(base), p)
	case <-time.After(5 * time.Second):
		t.Fatal("listener not called")
	}
	require.NoError(t, c.RemoveNode(base+"/child"))
}

func TestSessionClient_Closed(t *testing.T) {
	c := newLiveClient(t)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.Error(t, c.CreateEphemeralNode("/closed"))
	assert.Error(t, c.AddListener("/closed", func(string) {}))
}

func TestSessionClient_ProviderRightAfterFirstLookup(t *testing.T) {
	consumer := NewRegistry(newLiveClient(t))
	defer consumer.Close()
	provider := NewRegistry(newLiveClient(t))
	defer provider.Close()

	service := "com.example.Race" + time.Now().Format("150405000000")
	condition := rpcurl.New(rpcurl.ProtocolRPC, "0.0.0.0", 0,
		rpcurl.WithParam(rpcurl.KeyInterface, service))

	got, err := consumer.Lookup(condition)
	require.NoError(t, err)
	assert.Empty(t, got)

	d := rpcurl.New(rpcurl.ProtocolRPC, "10.0.0.1", 20880,
		rpcurl.WithParam(rpcurl.KeyInterface, service))
	require.NoError(t, provider.Register(d))

	require.Eventually(t, func() bool {
		return len(consumer.Providers(service)) == 1
	}, 5*time.Second, 20*time.Millisecond, "consumer never saw the provider")

	require.NoError(t, provider.Close())
	require.Eventually(t, func() bool {
		return len(consumer.Providers(service)) == 0
	}, 5*time.Second, 20*time.Millisecond, "consumer never saw the provider leave")
}
