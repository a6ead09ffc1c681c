package application

import (
	"context"
	"testing"
	"time"

	"admission-gateway/middleware/admission/infra"
)

type blockingPool struct{}

func (p *blockingPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case <-time.After(5 * time.Second):
		// não deve chegar aqui nos testes
		return nil, false
	}
}

func (p *blockingPool) InFlight() int { return 0 }

func TestConcurrencyService_Acquire_AllowsWhenNoPool(t *testing.T) {
	svc := ConcurrencyService{}
	release, ok := svc.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected ok")
	}
	release()
	if svc.InFlight() != 0 {
		t.Fatalf("expected no in-flight count without pool")
	}
}

func TestConcurrencyService_Acquire_UsesTimeout(t *testing.T) {
	svc := ConcurrencyService{Pool: &blockingPool{}, AcquireTimeout: 10 * time.Millisecond}

	_, ok := svc.Acquire(context.Background())
	if ok {
		t.Fatalf("expected timeout and ok=false")
	}
}

func TestConcurrencyService_Acquire_TracksInFlight(t *testing.T) {
	svc := ConcurrencyService{Pool: infra.NewChanPool(2)}

	r1, ok := svc.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected first slot")
	}
	r2, ok := svc.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected second slot")
	}
	if got := svc.InFlight(); got != 2 {
		t.Fatalf("expected 2 in flight, got %d", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := svc.Acquire(ctx); ok {
		t.Fatalf("expected full pool with cancelled ctx to refuse")
	}

	r1()
	r2()
	if got := svc.InFlight(); got != 0 {
		t.Fatalf("expected 0 in flight after release, got %d", got)
	}
}
