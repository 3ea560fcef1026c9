package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"squadfire/battlecore/internal/events"
	"squadfire/battlecore/internal/logging"
)

func startFeed(t *testing.T, stream *events.Stream, token string) *grpc.ClientConn {
	t.Helper()
	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer(ServerOptions(token)...)
	NewService(stream, WithLogger(logging.NewTestLogger())).Register(server)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func publish(t *testing.T, stream *events.Stream, kind string, turn int) {
	t.Helper()
	payload, err := structpb.NewStruct(map[string]any{"kind": kind, "turn": turn})
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	env := &events.Envelope{Kind: kind, Mission: "m-1", Turn: turn, OccurredAt: timestamppb.New(time.UnixMilli(42)), Payload: payload}
	if _, err := stream.Publish(env); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestFeedStreamsCompressedFrames(t *testing.T) {
	stream := events.NewStream(events.Config{})
	conn := startFeed(t, stream, "")
	publish(t, stream, "battle-started", 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := OpenFeed(ctx, conn, "viewer", grpc.UseCompressor(CompressorName))
	if err != nil {
		t.Fatalf("open feed: %v", err)
	}

	//1.- The retained notice is replayed on attach.
	env, err := client.Recv()
	if err != nil {
		t.Fatalf("recv replay: %v", err)
	}
	if env.Sequence != 1 || env.Kind != "battle-started" || env.Mission != "m-1" {
		t.Fatalf("unexpected replay %+v", env)
	}
	if !env.OccurredAt.AsTime().Equal(time.UnixMilli(42)) {
		t.Fatalf("timestamp lost: %v", env.OccurredAt.AsTime())
	}
	if err := client.Ack(env.Sequence); err != nil {
		t.Fatalf("ack: %v", err)
	}

	//2.- Live notices follow in order.
	publish(t, stream, "turn-ended", 2)
	env, err = client.Recv()
	if err != nil {
		t.Fatalf("recv live: %v", err)
	}
	if env.Sequence != 2 || env.Turn != 2 || env.Payload.AsMap()["kind"] != "turn-ended" {
		t.Fatalf("unexpected live envelope %+v", env)
	}
}

func TestFeedRequiresToken(t *testing.T) {
	stream := events.NewStream(events.Config{})
	conn := startFeed(t, stream, "s3cret")
	publish(t, stream, "shot", 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := OpenFeed(ctx, conn, "anonymous")
	if err == nil {
		_, err = client.Recv()
	}
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}

	client, err = OpenFeed(WithToken(ctx, "s3cret"), conn, "trusted")
	if err != nil {
		t.Fatalf("open feed: %v", err)
	}
	env, err := client.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if env.Kind != "shot" {
		t.Fatalf("expected shot, got %s", env.Kind)
	}
}

func TestEnvelopeFromFrameRejectsMissingKind(t *testing.T) {
	if _, err := events.EnvelopeFromFrame(&structpb.Struct{}); err == nil {
		t.Fatal("expected error for frame without kind")
	}
}
