package transport

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/frankli0324/go-fetchstream/internal/model"
)

// Logging logs every request at debug level once its headers arrived or
// it failed.
func Logging(logger *zap.Logger) model.Middleware {
	return func(next model.Transport) model.Transport {
		return func(ctx context.Context, url string, opts *model.Options) (*model.Response, error) {
			start := time.Now()
			method := "GET"
			if opts != nil {
				method = model.NormalizeMethod(opts.Method)
			}
			resp, err := next(ctx, url, opts)
			if err != nil {
				logger.Debug("request failed",
					zap.String("method", method),
					zap.String("url", url),
					zap.Duration("elapsed", time.Since(start)),
					zap.Error(err))
				return nil, err
			}
			logger.Debug("response headers received",
				zap.String("method", method),
				zap.String("url", resp.URL),
				zap.Int("status", resp.Status),
				zap.Duration("elapsed", time.Since(start)))
			return resp, nil
		}
	}
}
