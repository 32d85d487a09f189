package common

import (
	"fmt"

	"github.com/futig/zoning-qa/internal/config"
	"github.com/futig/zoning-qa/internal/entity"
	pkgHTTP "github.com/futig/zoning-qa/pkg/http"
	"go.uber.org/zap"
)

// NewBaseConnector builds an authenticated JSON connector for a provider.
// A missing token fails here, before any request is sent.
func NewBaseConnector(cfg config.HTTPClientConfig, logger *zap.Logger) (*pkgHTTP.Connector, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: token for %s is not set", entity.ErrMissingAPIKey, cfg.Url)
	}
	if cfg.Url == "" {
		return nil, fmt.Errorf("%w: provider url is not set", entity.ErrConfiguration)
	}

	connCfg := &pkgHTTP.ConnectorConfig{
		Logger:  logger,
		BaseURL: cfg.Url,
	}

	auth := pkgHTTP.WithAuthToken(cfg.Token)
	if cfg.AuthHeader != "" {
		auth = pkgHTTP.WithAPIKeyHeader(cfg.AuthHeader, cfg.Token)
	}

	return pkgHTTP.NewConnector(
		connCfg,
		pkgHTTP.WithRequestTimeout(cfg.RequestTimeout),
		pkgHTTP.WithConnClientTimeout(cfg.ConnTimeout),
		pkgHTTP.WithClientKeepAlive(cfg.KeepAlive),
		pkgHTTP.WithIdleConnTimeout(cfg.IdleConnTimeout),
		pkgHTTP.WithResponseHeaderTimeout(cfg.ResponseHeaderTimeout),
		pkgHTTP.WithRequestLogging(),
		auth,
	), nil
}
