//go:build tools

package tools

// Anchors protoc tooling in go.mod for the protogen build.
import (
	_ "google.golang.org/grpc/cmd/protoc-gen-go-grpc"
)
