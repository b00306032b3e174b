//go:build protogen

package entitlements

import (
	"context"
	"net"
	"testing"
	"time"

	entitlementsv1 "github.com/digos-health/himsog/protos/gen/entitlements/v1"
	"google.golang.org/grpc"
)

type stubBillingServer struct {
	entitlementsv1.UnimplementedEntitlementsServiceServer
	resp *entitlementsv1.EntitlementsResponse
}

func (s *stubBillingServer) GetEntitlements(context.Context, *entitlementsv1.EntitlementsRequest) (*entitlementsv1.EntitlementsResponse, error) {
	return s.resp, nil
}

func startStubBilling(t *testing.T, resp *entitlementsv1.EntitlementsResponse) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := grpc.NewServer()
	entitlementsv1.RegisterEntitlementsServiceServer(srv, &stubBillingServer{resp: resp})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis.Addr().String()
}

func TestClient_GetEntitlements(t *testing.T) {
	addr := startStubBilling(t, &entitlementsv1.EntitlementsResponse{
		Tier:                   "pro",
		MaxServices:            50,
		MaxMonthlyAppointments: 1000,
	})

	client, err := NewClient(addr)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	snap, err := client.GetEntitlements(ctx, "prov-123")
	if err != nil {
		t.Fatalf("get entitlements: %v", err)
	}
	want := Snapshot{Tier: "pro", MaxServices: 50, MaxMonthlyAppointments: 1000}
	if snap != want {
		t.Fatalf("snapshot = %+v, want %+v", snap, want)
	}
}
