//go:build !protogen

package schedule

// NewGRPCSource is a no-op without generated gRPC stubs; callers fall back
// to the Postgres source.
func NewGRPCSource(_ string) (Source, error) {
	return nil, nil
}
