package server

import (
	"github.com/go-chi/chi/v5"
	"google.golang.org/grpc"
)

// Registrar attaches one service's HTTP routes. public is unauthenticated;
// private already carries the bearer middleware.
type Registrar interface {
	Register(public, private chi.Router)
}

// GRPCRegistrar is a common interface for gRPC service registrars.
type GRPCRegistrar interface {
	Register(s *grpc.Server)
}
