package shutdown

import (
	"context"
	"testing"
	"time"

	rpcerrors "github.com/vinayprograms/rpckit/errors"
	"github.com/vinayprograms/rpckit/registry"
	"github.com/vinayprograms/rpckit/registry/local"
	"github.com/vinayprograms/rpckit/rpcurl"
)

func TestRegisterProvider(t *testing.T) {
	provider := local.NewRegistry(rpcurl.MustParse("local://127.0.0.1:0"))
	consumer := local.NewRegistry(rpcurl.MustParse("local://127.0.0.1:1"))
	defer consumer.Close()

	echo := rpcurl.MustParse("rpckit://10.0.0.1:20880?interface=com.example.Echo")
	if err := provider.Register(echo); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	seenDuringClose := -1
	coord := NewCoordinator(DefaultConfig())
	coord.RegisterProvider("echo", provider, echo)
	coord.RegisterFunc("probe", PhaseUnwatch, func(context.Context) error {
		// Runs after the unregister phase and before the registry closes.
		got, err := consumer.Lookup(echo)
		seenDuringClose = len(got)
		return err
	})

	if err := coord.ShutdownWithTimeout(5 * time.Second); err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}
	if seenDuringClose != 0 {
		t.Errorf("consumer saw %d providers after the unregister phase, want 0", seenDuringClose)
	}
	if !provider.IsClosed() {
		t.Error("provider registry not closed in the sessions phase")
	}

	names := make([]string, 0, 3)
	for _, hr := range coord.Result().Results {
		names = append(names, hr.Name)
	}
	want := []string{"echo.unregister", "probe", "echo.close"}
	for i := range want {
		if i >= len(names) || names[i] != want[i] {
			t.Fatalf("handler order = %v, want %v", names, want)
		}
	}
}

func TestWithdraw_ClosedRegistry(t *testing.T) {
	r := local.NewRegistry(rpcurl.MustParse("local://127.0.0.1:0"))
	r.Close()

	err := Withdraw(r, rpcurl.MustParse("rpckit://10.0.0.1:20880?interface=Echo")).OnShutdown(context.Background())
	if !rpcerrors.Is(err, rpcerrors.ErrCodeClosed) {
		t.Errorf("Withdraw on closed registry error = %v, want CLOSED", err)
	}
}

func TestWithdraw_StopsAtDeadline(t *testing.T) {
	r := local.NewRegistry(rpcurl.MustParse("local://127.0.0.1:0"))
	defer r.Close()

	u := rpcurl.MustParse("rpckit://10.0.0.1:20880?interface=Echo")
	r.Register(u)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Withdraw(r, u).OnShutdown(ctx); err == nil {
		t.Error("expected an error for an expired context")
	}
	if len(r.Registered()) != 1 {
		t.Error("nothing should be withdrawn after the deadline")
	}
}

func TestCloseFactories(t *testing.T) {
	reg, err := registry.Get(rpcurl.MustParse("local://127.0.0.1:7"))
	if err != nil {
		t.Fatalf("registry.Get error: %v", err)
	}

	if err := CloseFactories().OnShutdown(context.Background()); err != nil {
		t.Fatalf("CloseFactories error: %v", err)
	}
	if !reg.(*local.Registry).IsClosed() {
		t.Error("factory-created registry not closed")
	}
}
