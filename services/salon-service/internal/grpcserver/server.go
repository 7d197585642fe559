//go:build protogen

// gRPC surface for internal callers that want stylist hours without going
// through the event mirror. Build with -tags protogen after generating
// protos/gen from protos/salon/v1.
package grpcserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"

	"github.com/salonbookhq/salonbook/libs/grpcx"
	salonv1 "github.com/salonbookhq/salonbook/protos/gen/salon/v1"
	"github.com/salonbookhq/salonbook/services/salon-service/internal/storage"
)

type Server struct {
	salonv1.UnimplementedSalonServiceServer
	repo   *storage.Repository
	logger *slog.Logger
}

func New(repo *storage.Repository, logger *slog.Logger) *Server {
	return &Server{repo: repo, logger: logger}
}

func (s *Server) GetStylistHours(ctx context.Context, req *salonv1.StylistHoursRequest) (*salonv1.StylistHoursResponse, error) {
	st, err := s.repo.GetStylist(ctx, req.GetSalonId(), req.GetStylistId())
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(st.WeeklyHours)
	if err != nil {
		return nil, err
	}
	return &salonv1.StylistHoursResponse{
		StylistId:       st.ID,
		WeeklyHoursJson: string(raw),
	}, nil
}

// Serve blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := grpcx.NewServer()
	salonv1.RegisterSalonServiceServer(srv, s)

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()
	s.logger.Info("grpc server listening", "addr", addr)
	return srv.Serve(lis)
}
