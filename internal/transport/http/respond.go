package httptransport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"rdapd/internal/cache"
	"rdapd/internal/rdap"
	"rdapd/pkg/requestcontext"
)

// ContentType is the RDAP media type (RFC 7480).
const ContentType = "application/rdap+json"

// RFC 7483 section 8 search envelopes. Members never declare their own
// rdapConformance; the envelope carries the union.
type domainSearchResults struct {
	Conformance []string      `json:"rdapConformance"`
	Results     []rdap.Domain `json:"domainSearchResults"`
}

type nameserverSearchResults struct {
	Conformance []string          `json:"rdapConformance"`
	Results     []rdap.Nameserver `json:"nameserverSearchResults"`
}

func domainSearchEnvelope(members []*rdap.Domain) domainSearchResults {
	tags := []string{rdap.ExtLevel0}
	out := make([]rdap.Domain, 0, len(members))
	for _, d := range members {
		tags = append(tags, d.Conformance...)
		m := *d
		m.Conformance = nil
		out = append(out, m)
	}
	return domainSearchResults{Conformance: mergeTags(tags), Results: out}
}

func nameserverSearchEnvelope(members []*rdap.Nameserver) nameserverSearchResults {
	tags := []string{rdap.ExtLevel0}
	out := make([]rdap.Nameserver, 0, len(members))
	for _, ns := range members {
		tags = append(tags, ns.Conformance...)
		m := *ns
		m.Conformance = nil
		out = append(out, m)
	}
	return nameserverSearchResults{Conformance: mergeTags(tags), Results: out}
}

func mergeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// encodeEntry renders a resolver result into its replayable wire form: a
// 200 with the object body, or a 302 whose Location is the first candidate
// URL and whose body links the full ordered list.
func encodeEntry(obj rdap.Object) (*cache.Entry, error) {
	if red, ok := obj.(*rdap.Redirect); ok {
		body, err := json.Marshal(redirectBody(red))
		if err != nil {
			return nil, fmt.Errorf("encode redirect: %w", err)
		}
		e := &cache.Entry{Status: http.StatusFound, Body: body}
		if len(red.URLs) > 0 {
			e.Location = red.URLs[0]
		}
		return e, nil
	}
	body, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", obj.Kind(), err)
	}
	return &cache.Entry{Status: http.StatusOK, Body: body}, nil
}

func redirectBody(red *rdap.Redirect) *rdap.Error {
	links := make([]rdap.Link, 0, len(red.URLs))
	for _, u := range red.URLs {
		links = append(links, rdap.Link{Rel: "related", Href: u, Type: ContentType})
	}
	return &rdap.Error{
		Common: rdap.Common{
			Conformance: []string{rdap.ExtLevel0},
			Links:       links,
		},
		ErrorCode:   http.StatusFound,
		Title:       "Redirect",
		Description: []string{"authoritative data for this object lives at another service"},
	}
}

// writeEntry replays an encoded response.
func (h *Handler) writeEntry(ctx context.Context, w http.ResponseWriter, e *cache.Entry) {
	w.Header().Set("Content-Type", ContentType)
	if e.Location != "" {
		w.Header().Set("Location", e.Location)
	}
	w.WriteHeader(e.Status)
	if _, err := w.Write(e.Body); err != nil {
		h.logger.WarnContext(ctx, "write response",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

func (h *Handler) writeRDAP(ctx context.Context, w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		h.logger.ErrorContext(ctx, "encode response",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		w.Header().Set("Content-Type", ContentType)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"rdapConformance":["rdap_level_0"],"errorCode":500,"title":"Internal Error"}`))
		return
	}
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		h.logger.WarnContext(ctx, "write response",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

// writeRDAPError sends an RDAP error document. Leave desc empty for
// internal failures; the body then carries only the code and title.
func (h *Handler) writeRDAPError(ctx context.Context, w http.ResponseWriter, status int, title string, desc ...string) {
	h.writeRDAP(ctx, w, status, &rdap.Error{
		Common:      rdap.Common{Conformance: []string{rdap.ExtLevel0}},
		ErrorCode:   status,
		Title:       title,
		Description: desc,
	})
}
