package natskv

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	rpcerrors "github.com/vinayprograms/rpckit/errors"
	"github.com/vinayprograms/rpckit/registry"
	"github.com/vinayprograms/rpckit/rpcurl"
)

// getNATSConn returns a NATS connection for testing, or skips the test.
func getNATSConn(t *testing.T) *nats.Conn {
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = "nats://localhost:4222"
	}

	if testing.Short() {
		t.Skip("skipping NATS test in short mode")
	}

	conn, err := nats.Connect(url,
		nats.Timeout(2*time.Second),
		nats.MaxReconnects(0),
	)
	if err != nil {
		t.Skipf("skipping: NATS not available at %s: %v", url, err)
	}

	return conn
}

// uniqueBucket generates a unique bucket name for test isolation.
func uniqueBucket() string {
	return "test-" + time.Now().Format("150405") + "-" + fmt.Sprintf("%d", time.Now().UnixNano()%1000000)
}

func newTestRegistry(t *testing.T, conn *nats.Conn, bucket string) *Registry {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Bucket = bucket
	r, err := NewRegistry(conn, cfg)
	if err != nil {
		t.Fatalf("NewRegistry error: %v", err)
	}
	return r
}

func echoProvider(port int) *rpcurl.URL {
	return rpcurl.New(rpcurl.ProtocolRPC, "10.0.0.1", port,
		rpcurl.WithParams(rpcurl.ServiceParams("com.example.Echo", "1.0.0")))
}

func echoCondition() *rpcurl.URL {
	return rpcurl.MustParse("rpckit://0.0.0.0:0?interface=com.example.Echo")
}

// --- Unit Tests ---

func TestKey(t *testing.T) {
	u := echoProvider(20880)
	key := Key(u)

	parts := strings.Split(key, ".")
	if len(parts) != 3 || parts[1] != "providers" {
		t.Fatalf("Key = %q, want <service>.providers.<url>", key)
	}
	if strings.ContainsAny(key, "/?=&:") {
		t.Errorf("Key %q contains characters KV keys do not allow", key)
	}
	if !strings.HasPrefix(key, servicePrefix("com.example.Echo")) {
		t.Errorf("Key %q does not start with the service prefix", key)
	}

	got, err := parseKey(key)
	if err != nil {
		t.Fatalf("parseKey error: %v", err)
	}
	if !got.Equal(u) {
		t.Errorf("parseKey = %s, want %s", got, u)
	}
}

func TestParseKey_Rejects(t *testing.T) {
	for _, key := range []string{
		"",
		"agent-1",
		"YQ.consumers.YQ",
		"YQ.providers.!!!",
		"YQ.providers.YQ.extra",
	} {
		_, err := parseKey(key)
		if err == nil {
			t.Errorf("parseKey(%q) should fail", key)
			continue
		}
		if !rpcerrors.Is(err, rpcerrors.ErrCodeInvalidInput) {
			t.Errorf("parseKey(%q) code = %v, want INVALID_INPUT", key, err)
		}
	}
}

func TestConfigFromURL(t *testing.T) {
	cfg, err := ConfigFromURL(rpcurl.MustParse("nats://127.0.0.1:4222"))
	if err != nil {
		t.Fatalf("ConfigFromURL error: %v", err)
	}
	if cfg.Bucket != DefaultBucket {
		t.Errorf("Bucket = %q, want %q", cfg.Bucket, DefaultBucket)
	}
	if cfg.TTL != DefaultTTL {
		t.Errorf("TTL = %v, want %v", cfg.TTL, DefaultTTL)
	}
	if cfg.Replicas != 1 {
		t.Errorf("Replicas = %d, want 1", cfg.Replicas)
	}
	if cfg.Serializer == nil || cfg.Serializer.Name() != "json" {
		t.Errorf("Serializer = %v, want json", cfg.Serializer)
	}

	cfg, err = ConfigFromURL(rpcurl.MustParse(
		"nats://127.0.0.1:4222?nats.bucket=svc&nats.ttlMs=6000&nats.replicas=3&timeout=250&serializer=yaml"))
	if err != nil {
		t.Fatalf("ConfigFromURL error: %v", err)
	}
	if cfg.Bucket != "svc" || cfg.TTL != 6*time.Second || cfg.Replicas != 3 {
		t.Errorf("cfg = %+v, want bucket svc, ttl 6s, 3 replicas", cfg)
	}
	if cfg.OpTimeout != 250*time.Millisecond {
		t.Errorf("OpTimeout = %v, want 250ms", cfg.OpTimeout)
	}
	if cfg.Serializer.Name() != "yaml" {
		t.Errorf("Serializer = %s, want yaml", cfg.Serializer.Name())
	}

	_, err = ConfigFromURL(rpcurl.MustParse("nats://127.0.0.1:4222?serializer=hessian"))
	if !rpcerrors.Is(err, rpcerrors.ErrCodeConfiguration) {
		t.Errorf("unknown serializer error = %v, want CONFIGURATION", err)
	}
}

func TestConfig_Defaults(t *testing.T) {
	var cfg Config
	if err := cfg.applyDefaults(); err != nil {
		t.Fatalf("applyDefaults error: %v", err)
	}
	if cfg.Bucket != DefaultBucket || cfg.TTL != DefaultTTL || cfg.Replicas != 1 || cfg.OpTimeout != DefaultOpTimeout {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
	if cfg.Serializer == nil {
		t.Error("Serializer not defaulted")
	}
}

func TestNewRegistry_NilConnection(t *testing.T) {
	_, err := NewRegistry(nil, DefaultConfig())
	if !rpcerrors.Is(err, rpcerrors.ErrCodeInvalidInput) {
		t.Errorf("NewRegistry(nil) error = %v, want INVALID_INPUT", err)
	}
}

// --- Integration Tests ---

func TestRegistry_RegisterLookup(t *testing.T) {
	conn := getNATSConn(t)
	defer conn.Close()

	r := newTestRegistry(t, conn, uniqueBucket())
	defer r.Close()

	d := echoProvider(20880)
	if err := r.Register(d); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	other := rpcurl.MustParse("rpckit://10.0.0.2:20880?interface=com.example.Other")
	if err := r.Register(other); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	got, err := r.Lookup(echoCondition())
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if len(got) != 1 || !got[0].Equal(d) {
		t.Errorf("Lookup = %v, want [%s]", got, d)
	}

	if err := r.Unregister(d); err != nil {
		t.Fatalf("Unregister error: %v", err)
	}
	if err := r.Unregister(d); err != nil {
		t.Errorf("second Unregister error: %v", err)
	}

	got, _ = r.Lookup(echoCondition())
	if len(got) != 0 {
		t.Errorf("Lookup after Unregister = %v, want none", got)
	}
}

func TestRegistry_MultipleClients(t *testing.T) {
	conn1 := getNATSConn(t)
	defer conn1.Close()
	conn2 := getNATSConn(t)
	defer conn2.Close()

	bucket := uniqueBucket()
	provider := newTestRegistry(t, conn1, bucket)
	consumer := newTestRegistry(t, conn2, bucket)
	defer consumer.Close()

	var mu sync.Mutex
	var seen []int
	err := consumer.Subscribe(echoCondition(), func(_ string, providers []*rpcurl.URL) {
		mu.Lock()
		seen = append(seen, len(providers))
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	events, _ := consumer.Watch()

	d := echoProvider(20880)
	if err := provider.Register(d); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Type != registry.EventAdded || !ev.URL.Equal(d) {
			t.Errorf("event = %+v, want added %s", ev, d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for added event")
	}

	// Closing the provider withdraws its entry.
	provider.Close()

	select {
	case ev := <-events:
		if ev.Type != registry.EventRemoved {
			t.Errorf("Type = %v, want %v", ev.Type, registry.EventRemoved)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for removed event")
	}

	// Listeners run just after watchers are notified.
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n >= 3 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 || seen[0] != 0 || seen[1] != 1 || seen[2] != 0 {
		t.Errorf("listener saw %v, want [0 1 0]", seen)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	conn := getNATSConn(t)
	defer conn.Close()

	r := newTestRegistry(t, conn, uniqueBucket())
	defer r.Close()

	var wg sync.WaitGroup
	numProviders := 50

	for i := 0; i < numProviders; i++ {
		wg.Add(1)
		go func(port int) {
			defer wg.Done()
			r.Register(echoProvider(port))
		}(20000 + i)
	}
	wg.Wait()

	got, err := r.Lookup(echoCondition())
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if len(got) != numProviders {
		t.Errorf("Lookup returned %d providers, want %d", len(got), numProviders)
	}
}

func TestRegistry_InvalidData(t *testing.T) {
	conn := getNATSConn(t)
	defer conn.Close()

	r := newTestRegistry(t, conn, uniqueBucket())
	defer r.Close()

	// A value that does not decode is skipped.
	ctx, cancel := r.opContext()
	defer cancel()
	if _, err := r.kv.Put(ctx, Key(echoProvider(1)), []byte("not json")); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	d := echoProvider(20880)
	r.Register(d)

	got, err := r.Lookup(echoCondition())
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if len(got) != 1 || !got[0].Equal(d) {
		t.Errorf("Lookup = %v, want [%s]", got, d)
	}
}

func TestRegistry_OperationsAfterClose(t *testing.T) {
	conn := getNATSConn(t)
	defer conn.Close()

	r := newTestRegistry(t, conn, uniqueBucket())
	r.Close()

	if err := r.Register(echoProvider(20880)); !rpcerrors.Is(err, rpcerrors.ErrCodeClosed) {
		t.Errorf("Register: expected CLOSED, got %v", err)
	}
	if _, err := r.Lookup(echoCondition()); !rpcerrors.Is(err, rpcerrors.ErrCodeClosed) {
		t.Errorf("Lookup: expected CLOSED, got %v", err)
	}
	if _, err := r.Watch(); !rpcerrors.Is(err, rpcerrors.ErrCodeClosed) {
		t.Errorf("Watch: expected CLOSED, got %v", err)
	}
	if !conn.IsConnected() {
		t.Error("Close must not close a connection the registry does not own")
	}
}

func TestFactory_ThroughAdaptiveResolver(t *testing.T) {
	conn := getNATSConn(t)
	addr := conn.ConnectedAddr()
	conn.Close()

	u := rpcurl.MustParse("nats://" + addr + "?nats.bucket=" + uniqueBucket())
	r1, err := registry.Get(u)
	if err != nil {
		t.Fatalf("registry.Get error: %v", err)
	}
	if _, ok := r1.(*Registry); !ok {
		t.Fatalf("registry.Get returned %T, want *natskv.Registry", r1)
	}
	r2, _ := registry.Get(u)
	if r1 != r2 {
		t.Error("same url should resolve to the same registry")
	}

	if err := registry.CloseFactories(); err != nil {
		t.Errorf("CloseFactories error: %v", err)
	}
}
