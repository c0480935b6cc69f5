// Package interceptors содержит unary-интерсепторы внутреннего gRPC-сервера:
// логирование с request_id, перехват паник и дедлайн по умолчанию.
package interceptors

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/pribylovaa/go-auth-core/internal/pkg/log"
	"github.com/pribylovaa/go-auth-core/internal/pkg/redact"
)

// UnaryLoggingInterceptor логирует unary-вызовы и кладёт обогащённый логгер в контекст.
//
// Формат записи: msg="grpc", request_id (из x-request-id или новый UUID),
// method, peer (адрес усечён), code, dur.
func UnaryLoggingInterceptor(base *slog.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = slog.Default()
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()

		var rid string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get("x-request-id"); len(v) > 0 && v[0] != "" {
				rid = v[0]
			}
		}
		if rid == "" {
			rid = uuid.NewString()
		}

		l := base.With(
			slog.String("request_id", rid),
			slog.String("method", info.FullMethod),
			slog.String("peer", peerAddr(ctx)),
		)
		ctx = log.Into(ctx, l)

		resp, err := handler(ctx, req)

		l.Info("grpc",
			slog.String("code", status.Code(err).String()),
			slog.Duration("dur", time.Since(start)),
		)

		return resp, err
	}
}

// peerAddr - усечённый IP клиента или "-".
func peerAddr(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p == nil || p.Addr == nil {
		return "-"
	}

	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return "-"
	}

	return redact.IP(host)
}
