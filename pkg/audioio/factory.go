package audioio

import (
	"fmt"
	"log/slog"
)

// NewSource opens a capture source for the configured backend.
// No native capture backend is linked on this platform yet, so auto
// resolves to the synthetic source.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendMock, BackendAuto, "":
		return NewMockSource(cfg, logger), nil
	default:
		return nil, fmt.Errorf("audioio: unknown backend %q", cfg.Backend)
	}
}
