package protocol

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

func TestAdminRPCHealthCheck(t *testing.T) {
	d := newTestDispatcher(t)
	rpc, err := NewAdminRPC("127.0.0.1:0", d, nil)
	if err != nil {
		t.Fatalf("NewAdminRPC: %v", err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = rpc.Serve(stop)
		close(done)
	}()
	defer func() {
		close(stop)
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("server did not shut down")
		}
	}()

	conn, err := grpc.NewClient(rpc.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	client := grpc_health_v1.NewHealthClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Fatalf("got status %v, want SERVING", resp.Status)
	}
}
