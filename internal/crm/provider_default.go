//go:build !protogen

package crm

import "log/slog"

func NewProvider(logger *slog.Logger, addr string) (Provider, error) {
	if addr != "" {
		logger.Warn("crm address set but binary built without protogen, contacts will be discarded", "addr", addr)
	}
	return NoopProvider{}, nil
}
