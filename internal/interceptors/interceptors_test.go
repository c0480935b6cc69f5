package interceptors

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/pribylovaa/go-auth-core/internal/pkg/log"
)

type capHandler struct {
	base    []slog.Attr
	lastMsg string
	lastLvl slog.Level
	attrs   map[string]any
}

func (h *capHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *capHandler) Handle(_ context.Context, r slog.Record) error {
	out := make(map[string]any, len(h.base)+8)
	for _, a := range h.base {
		out[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value.Any()
		return true
	})
	h.lastMsg = r.Message
	h.lastLvl = r.Level
	h.attrs = out
	return nil
}

func (h *capHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.base = append(h.base, attrs...)
	return h
}

func (h *capHandler) WithGroup(string) slog.Handler { return h }

func TestUnaryLoggingInterceptor_Success_WithRequestID(t *testing.T) {
	h := &capHandler{}
	logger := slog.New(h)

	md := metadata.New(map[string]string{"x-request-id": "rid-123"})
	ctx := metadata.NewIncomingContext(context.Background(), md)
	ctx = peer.NewContext(ctx, &peer.Peer{
		Addr: &net.TCPAddr{IP: net.IPv4(10, 1, 2, 3), Port: 50051},
	})
	info := &grpc.UnaryServerInfo{FullMethod: "/authcore.v1.SessionService/ValidateToken"}

	var inner *slog.Logger
	resp, err := UnaryLoggingInterceptor(logger)(ctx, "req", info, func(ctx context.Context, req any) (any, error) {
		inner = log.From(ctx)
		time.Sleep(2 * time.Millisecond)
		return "ok", nil
	})

	require.NoError(t, err)
	require.Equal(t, "ok", resp)
	require.NotSame(t, slog.Default(), inner)
	require.Equal(t, "grpc", h.lastMsg)
	require.Equal(t, slog.LevelInfo, h.lastLvl)
	require.Equal(t, "rid-123", h.attrs["request_id"])
	require.Equal(t, info.FullMethod, h.attrs["method"])
	require.Equal(t, "10.1.2.0", h.attrs["peer"])
	require.Equal(t, "OK", h.attrs["code"])

	d, ok := h.attrs["dur"].(time.Duration)
	require.True(t, ok)
	require.Greater(t, d, time.Duration(0))
}

func TestUnaryLoggingInterceptor_GeneratesUUID_And_LogsErrorCode(t *testing.T) {
	h := &capHandler{}
	info := &grpc.UnaryServerInfo{FullMethod: "/authcore.v1.SessionService/RevokeUserSessions"}

	_, err := UnaryLoggingInterceptor(slog.New(h))(context.Background(), "req", info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.InvalidArgument, "bad input")
	})

	require.Error(t, err)
	require.Equal(t, "InvalidArgument", h.attrs["code"])
	require.Equal(t, "-", h.attrs["peer"])

	rid, _ := h.attrs["request_id"].(string)
	_, parseErr := uuid.Parse(rid)
	require.NoError(t, parseErr)
}

func TestRecover_PanicToInternal(t *testing.T) {
	h := &capHandler{}
	info := &grpc.UnaryServerInfo{FullMethod: "/authcore.v1.SessionService/WillPanic"}

	resp, err := Recover(slog.New(h))(context.Background(), "req", info, func(ctx context.Context, req any) (any, error) {
		panic("boom")
	})

	require.Nil(t, resp)
	require.Equal(t, codes.Internal, status.Code(err))
	require.Equal(t, slog.LevelError, h.lastLvl)
	require.Equal(t, "panic_recovered", h.lastMsg)
	require.Equal(t, info.FullMethod, h.attrs["method"])

	stack, ok := h.attrs["stack"].(string)
	require.True(t, ok)
	require.NotEmpty(t, stack)
}

func TestRecover_NoPanic_PassThrough(t *testing.T) {
	h := &capHandler{}
	info := &grpc.UnaryServerInfo{FullMethod: "/authcore.v1.SessionService/OK"}

	resp, err := Recover(slog.New(h))(context.Background(), "req", info, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})

	require.NoError(t, err)
	require.Equal(t, "ok", resp)
	require.Empty(t, h.lastMsg)
}

func TestWithTimeout(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: "/authcore.v1.SessionService/Sleep"}

	t.Run("sets deadline", func(t *testing.T) {
		const d = 30 * time.Millisecond
		start := time.Now()

		_, err := WithTimeout(d)(context.Background(), "req", info, func(ctx context.Context, req any) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.GreaterOrEqual(t, time.Since(start), d)
	})

	t.Run("keeps existing deadline", func(t *testing.T) {
		parent, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
		defer cancel()
		pdl, _ := parent.Deadline()

		var childDL time.Time
		_, err := WithTimeout(time.Second)(parent, "req", info, func(ctx context.Context, req any) (any, error) {
			childDL, _ = ctx.Deadline()
			return nil, nil
		})

		require.NoError(t, err)
		require.True(t, pdl.Equal(childDL))
	})

	t.Run("zero disables", func(t *testing.T) {
		var has bool
		_, _ = WithTimeout(0)(context.Background(), "req", info, func(ctx context.Context, req any) (any, error) {
			_, has = ctx.Deadline()
			return nil, nil
		})
		require.False(t, has)
	})
}
