package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/csvcrypt/internal/core"
	"github.com/JonMunkholm/csvcrypt/internal/web/middleware"
)

// withRequestMetadata adds the client IP and User-Agent to ctx for run
// history and run logging.
func withRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithClientIP(ctx, middleware.ClientIP(r))
	ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
	return ctx
}
