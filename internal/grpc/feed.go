package grpc

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"squadfire/battlecore/internal/events"
	"squadfire/battlecore/internal/logging"
)

// Feed method names.
const (
	ServiceName     = "battlecore.feed.v1.PresentationFeed"
	SubscribeMethod = "/" + ServiceName + "/Subscribe"
)

const defaultBuffer = 64

// FeedServer is implemented by anything that can serve the presentation feed.
type FeedServer interface {
	Subscribe(grpc.ServerStream) error
}

// ServiceDesc describes the presentation feed. The client opens the stream with a
// StringValue naming the subscriber, then sends UInt64Value acknowledgements while the
// server streams one Struct frame per notice.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FeedServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    "Subscribe",
		Handler:       subscribeHandler,
		ServerStreams: true,
		ClientStreams: true,
	}},
	Metadata: "battlecore/feed.proto",
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	return srv.(FeedServer).Subscribe(stream)
}

// Option customises the feed service.
type Option func(*Service)

// WithBuffer overrides the per-subscriber channel capacity.
func WithBuffer(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.buffer = n
		}
	}
}

// WithLogger overrides the service logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// Service relays the notice stream to gRPC subscribers.
type Service struct {
	stream *events.Stream
	buffer int
	log    *logging.Logger
}

// NewService wires the feed to the notice stream.
func NewService(stream *events.Stream, opts ...Option) *Service {
	service := &Service{stream: stream, buffer: defaultBuffer, log: logging.L()}
	for _, opt := range opts {
		if opt != nil {
			opt(service)
		}
	}
	return service
}

// Register attaches the feed to a gRPC server.
func (s *Service) Register(server *grpc.Server) {
	server.RegisterService(&ServiceDesc, s)
}

// Subscribe implements FeedServer.
func (s *Service) Subscribe(stream grpc.ServerStream) error {
	if s == nil || s.stream == nil {
		return status.Error(codes.FailedPrecondition, "feed unavailable")
	}
	ctx := stream.Context()

	//1.- The opening message names the logical subscriber.
	var hello wrapperspb.StringValue
	if err := stream.RecvMsg(&hello); err != nil {
		return status.Errorf(codes.InvalidArgument, "read subscriber id: %v", err)
	}
	sub, err := s.stream.Subscribe(ctx, hello.GetValue(), s.buffer)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "subscribe: %v", err)
	}
	defer sub.Close()
	log := s.log.With(logging.String("subscriber", sub.ID()))
	log.Info("feed subscriber attached")

	//2.- Acknowledgements arrive on the same stream; a failed ack ends the call.
	ackErr := make(chan error, 1)
	go func() {
		for {
			var ack wrapperspb.UInt64Value
			if err := stream.RecvMsg(&ack); err != nil {
				if errors.Is(err, io.EOF) {
					ackErr <- nil
				} else {
					ackErr <- err
				}
				return
			}
			if err := sub.Ack(ack.GetValue()); err != nil {
				ackErr <- status.Errorf(codes.FailedPrecondition, "ack %d: %v", ack.GetValue(), err)
				return
			}
		}
	}()

	deliveries := sub.Events()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return status.Error(codes.Canceled, "stream cancelled")
			}
			return status.Error(codes.DeadlineExceeded, "stream deadline exceeded")
		case err := <-ackErr:
			if err != nil {
				log.Warn("feed subscriber failed", logging.Error(err))
				return err
			}
			//3.- The client half-closed; keep streaming until it goes away.
			ackErr = nil
		case env, ok := <-deliveries:
			if !ok {
				return status.Error(codes.Aborted, "subscription replaced")
			}
			if err := stream.SendMsg(events.FrameFromEnvelope(env)); err != nil {
				return err
			}
		}
	}
}

// FeedClient reads the presentation feed.
type FeedClient struct {
	stream grpc.ClientStream
}

// OpenFeed starts a subscription on conn. Pass grpc.UseCompressor(CompressorName) to
// receive zstd encoded frames.
func OpenFeed(ctx context.Context, conn grpc.ClientConnInterface, subscriber string, opts ...grpc.CallOption) (*FeedClient, error) {
	stream, err := conn.NewStream(ctx, &ServiceDesc.Streams[0], SubscribeMethod, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(wrapperspb.String(subscriber)); err != nil {
		//1.- io.EOF means the server already ended the call; RecvMsg carries the status.
		if errors.Is(err, io.EOF) {
			var frame structpb.Struct
			if rerr := stream.RecvMsg(&frame); rerr != nil {
				return nil, rerr
			}
		}
		return nil, err
	}
	return &FeedClient{stream: stream}, nil
}

// Recv blocks for the next envelope.
func (c *FeedClient) Recv() (*events.Envelope, error) {
	var frame structpb.Struct
	if err := c.stream.RecvMsg(&frame); err != nil {
		return nil, err
	}
	return events.EnvelopeFromFrame(&frame)
}

// Ack confirms the envelope so it is not replayed on reconnect.
func (c *FeedClient) Ack(sequence uint64) error {
	return c.stream.SendMsg(wrapperspb.UInt64(sequence))
}

// Close half-closes the client side of the stream.
func (c *FeedClient) Close() error {
	return c.stream.CloseSend()
}

var _ FeedServer = (*Service)(nil)
