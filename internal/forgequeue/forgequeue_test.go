package forgequeue

import (
	"context"
	"encoding/base64"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

// dialTestNATS connects to a NATS server for integration tests. Returns nil
// if none is reachable, so these tests skip cleanly on a machine without one
// running -- mirrors internal/store's setupTestPostgres pattern.
func dialTestNATS(t *testing.T) *nats.Conn {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, nats.Timeout(2*time.Second))
	if err != nil {
		return nil
	}
	return nc
}

func TestPublisherAndWorkerRoundTrip(t *testing.T) {
	nc := dialTestNATS(t)
	if nc == nil {
		t.Skip("no NATS server available")
	}
	defer nc.Close()

	subject := "crchack.forge.test"
	worker := NewWorker(nc, nil, WorkerConfig{Subject: subject, QueueGroup: "test-workers"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()
	time.Sleep(100 * time.Millisecond) // let the subscription register

	pub := NewPublisher(nc, subject)
	job := Job{
		Width: 32, Poly: "04c11db7", Init: "ffffffff", XorOut: "ffffffff",
		ReflectIn: true, ReflectOut: true,
		MessageB64: base64.StdEncoding.EncodeToString([]byte("hello")),
		TargetHex:  "deadbeef",
		Bits: []uint{
			40, 41, 42, 43, 44, 45, 46, 47, 48, 49, 50, 51, 52, 53, 54, 55,
			56, 57, 58, 59, 60, 61, 62, 63, 64, 65, 66, 67, 68, 69, 70, 71,
		},
	}

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer reqCancel()
	res, err := pub.Submit(reqCtx, job)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}

	cancel()
	<-done
}

func TestPublisherReportsInsufficientBits(t *testing.T) {
	nc := dialTestNATS(t)
	if nc == nil {
		t.Skip("no NATS server available")
	}
	defer nc.Close()

	subject := "crchack.forge.test.insufficient"
	worker := NewWorker(nc, nil, WorkerConfig{Subject: subject, QueueGroup: "test-workers"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	pub := NewPublisher(nc, subject)
	job := Job{
		Width: 32, Poly: "04c11db7", Init: "ffffffff", XorOut: "ffffffff",
		ReflectIn: true, ReflectOut: true,
		MessageB64: base64.StdEncoding.EncodeToString([]byte("hi")),
		TargetHex:  "deadbeef",
		Bits:       []uint{0, 1, 2},
	}

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer reqCancel()
	res, err := pub.Submit(reqCtx, job)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Success || res.ForgeCode != 6 {
		t.Errorf("res = %+v, want ForgeCode 6", res)
	}

	cancel()
	<-done
}
