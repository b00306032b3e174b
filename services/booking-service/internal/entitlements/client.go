//go:build protogen

package entitlements

import (
	"context"
	"time"

	"github.com/digos-health/himsog/libs/grpcx"
	entitlementsv1 "github.com/digos-health/himsog/protos/gen/entitlements/v1"
	"google.golang.org/grpc"
)

const (
	dialTimeout = 5 * time.Second
	callTimeout = 3 * time.Second
)

// Snapshot is the billing service's answer for one provider, detached
// from the wire type so callers never handle proto messages directly.
type Snapshot struct {
	Tier                   string `json:"tier"`
	MaxServices            int    `json:"max_services"`
	MaxMonthlyAppointments int    `json:"max_monthly_appointments"`
}

type Client struct {
	conn *grpc.ClientConn
	rpc  entitlementsv1.EntitlementsServiceClient
}

func NewClient(addr string) (*Client, error) {
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{
		Timeout: dialTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &Client{
		conn: conn,
		rpc:  entitlementsv1.NewEntitlementsServiceClient(conn),
	}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) GetEntitlements(ctx context.Context, providerID string) (Snapshot, error) {
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, err := c.rpc.GetEntitlements(callCtx, &entitlementsv1.EntitlementsRequest{
		ProviderId: providerID,
	})
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Tier:                   resp.Tier,
		MaxServices:            int(resp.MaxServices),
		MaxMonthlyAppointments: int(resp.MaxMonthlyAppointments),
	}, nil
}
