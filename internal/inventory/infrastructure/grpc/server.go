package grpc

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health-check service name reported for the ledger.
const ServiceName = "inventory.Ledger"

// Server exposes grpc.health.v1 for the intake service. The ledger service
// starts NOT_SERVING and flips to SERVING once stock and open orders are loaded.
type Server struct {
	health *health.Server
}

func NewServer() *Server {
	hs := health.NewServer()
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return &Server{health: hs}
}

func (s *Server) SetReady(ready bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if ready {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

// Shutdown marks every service NOT_SERVING so load balancers drain first.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

func (s *Server) Register(gs *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(gs, s.health)
}

func Run(addr string, srv *Server) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	gs := grpc.NewServer()
	srv.Register(gs)
	go func() {
		_ = gs.Serve(lis)
	}()
	return gs, nil
}
