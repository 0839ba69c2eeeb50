package service

import (
	"context"

	"github.com/drg911/htb-pro-card/pkg/profile"
	"github.com/drg911/htb-pro-card/pkg/source"
)

// Diagnostic is the outcome of a connection test.
type Diagnostic struct {
	Source  string           `json:"src"`
	OK      bool             `json:"ok"`
	Data    string           `json:"data,omitempty"`
	Error   string           `json:"err,omitempty"`
	Profile *profile.Profile `json:"profile,omitempty"`
}

// TestConnection fetches id straight from the source, bypassing the cache,
// and reports the raw result.
func (s *Service) TestConnection(ctx context.Context, id string, cfg source.Config) Diagnostic {
	if cfg == nil {
		return Diagnostic{Error: "no profile source configured"}
	}
	d := Diagnostic{Source: cfg.Name()}
	raw, err := s.fetcher.Fetch(ctx, id, cfg)
	if err != nil {
		d.Error = err.Error()
		s.log.Infof("connection test via %s failed: %v", d.Source, err)
		return d
	}
	p := profile.Normalize(string(raw))
	d.OK = true
	d.Data = string(raw)
	d.Profile = &p
	return d
}
