package mailbox

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/danmuck/wirerpc/internal/protocol/envelope"
	"github.com/danmuck/wirerpc/internal/testutil/testlog"
)

func response(token, payload string) *envelope.Response {
	return &envelope.Response{
		Control: &envelope.Control{Token: token},
		Payload: []byte(payload),
	}
}

func TestRegistryDeliverRemovesSlot(t *testing.T) {
	testlog.Start(t)
	r := New()
	ch, err := r.Register("t1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !r.Deliver("t1", response("t1", "pong")) {
		t.Fatalf("expected delivery")
	}
	got := <-ch
	if string(got.Payload) != "pong" {
		t.Fatalf("unexpected payload=%q", got.Payload)
	}
	if r.Len() != 0 {
		t.Fatalf("slot should be removed after delivery, len=%d", r.Len())
	}
	if r.Deliver("t1", response("t1", "again")) {
		t.Fatalf("second delivery for the same token must not succeed")
	}
}

func TestRegistryRejectsDuplicateAndEmptyTokens(t *testing.T) {
	testlog.Start(t)
	r := New()
	if _, err := r.Register("t1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := r.Register("t1"); !errors.Is(err, ErrDuplicateToken) {
		t.Fatalf("expected ErrDuplicateToken, got %v", err)
	}
	if _, err := r.Register("  "); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
}

func TestRegistryUnmatchedDeliveryIsFalse(t *testing.T) {
	testlog.Start(t)
	r := New()
	if r.Deliver("never", response("never", "x")) {
		t.Fatalf("delivery without a waiter must report false")
	}
}

func TestRegistryRemove(t *testing.T) {
	testlog.Start(t)
	r := New()
	if _, err := r.Register("t1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !r.Remove("t1") {
		t.Fatalf("expected removal")
	}
	if r.Remove("t1") {
		t.Fatalf("second removal should report false")
	}
	if r.Deliver("t1", response("t1", "late")) {
		t.Fatalf("delivery after removal must be dropped")
	}
}

func TestRegistryCloseWakesWaiters(t *testing.T) {
	testlog.Start(t)
	r := New()
	ch, err := r.Register("t1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	r.Close()
	r.Close()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	if _, err := r.Register("t2"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if r.Deliver("t1", response("t1", "x")) {
		t.Fatalf("delivery after close must fail")
	}
	if !r.Closed() {
		t.Fatalf("expected closed registry")
	}
}

func TestRegistryConcurrentCorrelation(t *testing.T) {
	testlog.Start(t)
	r := New()
	const n = 64
	chans := make([]<-chan *envelope.Response, n)
	for i := 0; i < n; i++ {
		ch, err := r.Register(fmt.Sprintf("tok-%d", i))
		if err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
		chans[i] = ch
	}

	var wg sync.WaitGroup
	for i := n - 1; i >= 0; i-- {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token := fmt.Sprintf("tok-%d", i)
			if !r.Deliver(token, response(token, token)) {
				t.Errorf("deliver %s failed", token)
			}
		}(i)
	}
	wg.Wait()

	for i, ch := range chans {
		got := <-ch
		if want := fmt.Sprintf("tok-%d", i); string(got.Payload) != want {
			t.Fatalf("slot %d received %q", i, got.Payload)
		}
	}
	if got := r.Tokens(); len(got) != 0 {
		t.Fatalf("expected empty registry, got %v", got)
	}
}
