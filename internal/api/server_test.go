package api

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/marker-engine/internal/config"
	"github.com/miradorstack/marker-engine/internal/models"
)

type fakeService struct {
	UnimplementedMarkerEngineServer
	lastText string
}

func (f *fakeService) Analyze(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req AnalyzeRequest
	if err := DecodeStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	f.lastText = req.Text
	return EncodeStruct(AnalyzeResponse{
		RequestID:   "req-1",
		Status:      models.StatusSuccess,
		Text:        req.Text,
		Markers:     []models.DetectedMarker{{MarkerID: "S_A", MarkerType: models.MarkerTypeSignal, Confidence: 0.6, DetectionPhase: models.PhaseInitial}},
		MarkerCount: 1,
		Metadata:    models.ResultMetadata{SchemaID: req.SchemaID, NLPService: "basic"},
	})
}

func startServer(t *testing.T, svc MarkerEngineServer) *grpc.ClientConn {
	t.Helper()
	server, err := NewServer(config.ServerConfig{Address: "127.0.0.1:0", GracefulTimeout: time.Second}, svc)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	go func() { _ = server.Start() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
		defer cancel()
		server.Shutdown(ctx)
	})

	conn, err := grpc.NewClient(server.Address(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestClientAnalyzeRoundTrip(t *testing.T) {
	svc := &fakeService{}
	client := NewClient(startServer(t, svc))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := client.Analyze(ctx, AnalyzeRequest{Text: "ich bin müde", SchemaID: "s1"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if svc.lastText != "ich bin müde" {
		t.Fatalf("server received %q", svc.lastText)
	}
	if resp.RequestID != "req-1" || resp.MarkerCount != 1 || resp.Metadata.SchemaID != "s1" {
		t.Fatalf("unexpected response %+v", resp)
	}
	want := []models.DetectedMarker{{MarkerID: "S_A", MarkerType: models.MarkerTypeSignal, Confidence: 0.6, DetectionPhase: models.PhaseInitial}}
	if diff := cmp.Diff(want, resp.Markers); diff != "" {
		t.Fatalf("markers mismatch (-want +got):\n%s", diff)
	}
}

func TestUnimplementedMethods(t *testing.T) {
	client := NewClient(startServer(t, &fakeService{}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := client.Status(ctx)
	if status.Code(err) != codes.Unimplemented {
		t.Fatalf("expected Unimplemented, got %v", err)
	}
}

func TestHealthServing(t *testing.T) {
	conn := startServer(t, &fakeService{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("unexpected health status %v", resp.GetStatus())
	}
}

func TestStructCodec(t *testing.T) {
	in := SessionScoreRequest{SessionID: "s1", MarkerID: "S_A"}
	s, err := EncodeStruct(in)
	if err != nil {
		t.Fatalf("EncodeStruct: %v", err)
	}
	if got := s.GetFields()["marker_id"].GetStringValue(); got != "S_A" {
		t.Fatalf("unexpected field %q", got)
	}
	var out SessionScoreRequest
	if err := DecodeStruct(s, &out); err != nil {
		t.Fatalf("DecodeStruct: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if _, err := EncodeStruct([]string{"not", "an", "object"}); err == nil {
		t.Fatalf("expected error for non-object payload")
	}
	var empty BatchRequest
	if err := DecodeStruct(nil, &empty); err != nil || len(empty.Requests) != 0 {
		t.Fatalf("nil struct should decode as empty: %+v %v", empty, err)
	}
}
