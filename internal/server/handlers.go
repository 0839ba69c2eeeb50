package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/drg911/htb-pro-card/pkg/identifier"
	"github.com/drg911/htb-pro-card/pkg/render"
	"github.com/drg911/htb-pro-card/pkg/service"
)

// Kinds lists the fragment routes, one per renderer.
var Kinds = []string{"card", "badge", "rank", "progress", "field"}

// settle applies the defaults to p. A json_url supplied by an untrusted
// caller must pass the relay policy.
func (s *Server) settle(p Params, trusted bool) (service.Settled, error) {
	req := p.Request()
	st, err := service.Settle(req, s.cfg.Defaults)
	if err != nil {
		return st, err
	}
	if strings.TrimSpace(req.JSONURL) != "" && !trusted && !s.cfg.TrustRequests {
		if err := s.cfg.Relay.Check(st.JSONURL); err != nil {
			return st, err
		}
	}
	return st, nil
}

// Lookup settles p against the defaults and resolves the profile. refresh
// bypasses the cache read. Failures end up in Result.Err.
func (s *Server) Lookup(ctx context.Context, p Params, refresh bool) (render.Result, service.Settled) {
	st, err := s.settle(p, false)
	if err != nil {
		s.log.Debugf("rejected fragment request: %v", err)
		return render.Result{Identifier: st.Identifier, Err: err}, st
	}
	cfg := service.SelectSource(st.JSONURL, s.cfg.Labs, s.cfg.RelayTimeout)

	var res render.Result
	res.Identifier = st.Identifier
	if refresh {
		res.Profile, res.Err = s.svc.Refresh(ctx, st.Identifier, cfg, st.TTL)
	} else {
		res.Profile, res.Err = s.svc.GetProfile(ctx, st.Identifier, cfg, st.TTL)
	}
	if res.Err != nil {
		s.log.Warnf("profile lookup failed: %v", res.Err)
	}
	return res, st
}

// Render builds the fragment of the given kind. Only the CLI passes
// refresh; the public routes always go through the cache.
func (s *Server) Render(ctx context.Context, kind string, p Params, refresh bool) (render.Fragment, error) {
	if kind == "badge" {
		// The badge is a hosted image, no profile lookup needed.
		st, _ := service.Settle(p.Request(), s.cfg.Defaults)
		return p.Badge().Render(render.Result{Identifier: st.Identifier}), nil
	}

	var r render.Renderer
	switch kind {
	case "card":
	case "rank":
		r = p.RankChip()
	case "progress":
		r = p.Progress()
	case "field":
		r = p.Field()
	default:
		return nil, fmt.Errorf("unknown fragment %q", kind)
	}

	res, st := s.Lookup(ctx, p, refresh)
	if kind == "card" {
		r = p.Card(st.ShowBadge)
	}
	return r.Render(res), nil
}

func (s *Server) handleFragment(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		frag, err := s.Render(r.Context(), kind, Params{r.URL.Query()}, false)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if err := frag.Render(w); err != nil {
			s.log.Errorf("writing %s fragment: %v", kind, err)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// adminResponse mirrors service.Diagnostic for actions other than the
// connection test.
type adminResponse struct {
	OK   bool        `json:"ok"`
	Src  string      `json:"src"`
	Data interface{} `json:"data,omitempty"`
	Err  string      `json:"err,omitempty"`
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	p, ok := formParams(w, r)
	if !ok {
		return
	}
	st, err := s.settle(p, true)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, service.Diagnostic{Error: err.Error()})
		return
	}
	cfg := service.SelectSource(st.JSONURL, s.cfg.Labs, s.cfg.RelayTimeout)
	writeJSON(w, http.StatusOK, s.svc.TestConnection(r.Context(), st.Identifier, cfg))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	p, ok := formParams(w, r)
	if !ok {
		return
	}
	id := identifier.Resolve(p.Get("id"), s.cfg.Defaults.Identifier)
	if err := s.svc.Invalidate(r.Context(), id); err != nil {
		writeJSON(w, http.StatusBadRequest, adminResponse{Src: "cache", Err: err.Error()})
		return
	}
	s.log.Infof("cache cleared for %s", id)
	writeJSON(w, http.StatusOK, adminResponse{OK: true, Src: "cache", Data: map[string]string{"message": "Cache cleared"}})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	p, ok := formParams(w, r)
	if !ok {
		return
	}
	st, err := s.settle(p, true)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, adminResponse{Err: err.Error()})
		return
	}
	cfg := service.SelectSource(st.JSONURL, s.cfg.Labs, s.cfg.RelayTimeout)
	prof, err := s.svc.Refresh(r.Context(), st.Identifier, cfg, st.TTL)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, adminResponse{Src: cfg.Name(), Err: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, adminResponse{OK: true, Src: cfg.Name(), Data: prof})
}

func formParams(w http.ResponseWriter, r *http.Request) (Params, bool) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, adminResponse{Err: err.Error()})
		return Params{}, false
	}
	return Params{r.Form}, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
