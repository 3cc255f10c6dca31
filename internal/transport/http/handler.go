// Package httptransport is the HTTP boundary of the server. It parses RDAP
// paths into typed queries, negotiates protocol extensions, consults the
// response cache, and encodes resolver results as application/rdap+json.
// Business rules stay in the resolver; handlers only translate.
package httptransport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/net/idna"
	"golang.org/x/sync/singleflight"

	"rdapd/internal/cache"
	"rdapd/internal/qlog"
	"rdapd/internal/rdap"
	"rdapd/internal/resolver"
	"rdapd/pkg/requestcontext"
)

// Service is the resolution engine surface the handlers drive.
type Service interface {
	Resolve(ctx context.Context, q resolver.Query, exts rdap.ExtensionSet) (rdap.Object, error)
	SearchDomains(ctx context.Context, pattern string, exts rdap.ExtensionSet) ([]*rdap.Domain, error)
	SearchNameservers(ctx context.Context, pattern string, exts rdap.ExtensionSet) ([]*rdap.Nameserver, error)
}

// Query-log kinds for the search endpoints; lookups use the object class.
const (
	kindDomainSearch     = "domain_search"
	kindNameserverSearch = "nameserver_search"
)

// Handler wires the RDAP endpoints to the resolution engine.
type Handler struct {
	service Service
	cache   cache.Cache
	qlog    qlog.Publisher
	logger  *slog.Logger
	group   singleflight.Group
}

// New constructs the handler. A nil cache or publisher disables that
// concern.
func New(service Service, responseCache cache.Cache, publisher qlog.Publisher, logger *slog.Logger) *Handler {
	if responseCache == nil {
		responseCache = cache.Nop{}
	}
	if publisher == nil {
		publisher = qlog.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		cache:   responseCache,
		qlog:    publisher,
		logger:  logger,
	}
}

// Register mounts the RDAP endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/help", h.HandleHelp)
	r.Get("/domain/{name}", h.HandleDomain)
	r.Get("/nameserver/{name}", h.HandleNameserver)
	r.Get("/entity/{handle}", h.HandleEntity)
	r.Get("/autnum/{asn}", h.HandleAutnum)
	r.Get("/ip/{addr}", h.HandleIP)
	r.Get("/ip/{addr}/{mask}", h.HandleIPPrefix)
	r.Get("/domains", h.HandleDomainSearch)
	r.Get("/nameservers", h.HandleNameserverSearch)
}

// HandleHelp handles GET /help requests. Help texts are stored per host;
// the default text answers hosts without one.
func (h *Handler) HandleHelp(w http.ResponseWriter, r *http.Request) {
	h.serveLookup(w, r, resolver.HelpQuery(r.Host))
}

// HandleDomain handles GET /domain/{name} requests.
func (h *Handler) HandleDomain(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "name")
	name, err := ldhName(raw)
	if err != nil {
		h.rejectQuery(w, r, string(rdap.KindDomain), raw, "domain name is not a valid IDN label sequence")
		return
	}
	h.serveLookup(w, r, resolver.DomainQuery(name))
}

// HandleNameserver handles GET /nameserver/{name} requests.
func (h *Handler) HandleNameserver(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "name")
	name, err := ldhName(raw)
	if err != nil {
		h.rejectQuery(w, r, string(rdap.KindNameserver), raw, "nameserver name is not a valid IDN label sequence")
		return
	}
	h.serveLookup(w, r, resolver.NameserverQuery(name))
}

// HandleEntity handles GET /entity/{handle} requests.
func (h *Handler) HandleEntity(w http.ResponseWriter, r *http.Request) {
	h.serveLookup(w, r, resolver.EntityQuery(chi.URLParam(r, "handle")))
}

// HandleAutnum handles GET /autnum/{asn} requests.
func (h *Handler) HandleAutnum(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "asn")
	asn, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		h.rejectQuery(w, r, string(rdap.KindAutnum), raw, "autnum must be a decimal AS number")
		return
	}
	h.serveLookup(w, r, resolver.AutnumQuery(uint32(asn)))
}

// HandleIP handles GET /ip/{addr} requests.
func (h *Handler) HandleIP(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "addr")
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		h.rejectQuery(w, r, string(rdap.KindNetwork), raw, "ip address is not valid")
		return
	}
	h.serveLookup(w, r, resolver.NetworkQuery(addr.Unmap()))
}

// HandleIPPrefix handles GET /ip/{addr}/{mask} requests. The containing
// network is looked up by the prefix's masked base address.
func (h *Handler) HandleIPPrefix(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "addr") + "/" + chi.URLParam(r, "mask")
	prefix, err := netip.ParsePrefix(raw)
	if err != nil {
		h.rejectQuery(w, r, string(rdap.KindNetwork), raw, "ip prefix is not valid")
		return
	}
	h.serveLookup(w, r, resolver.NetworkQuery(prefix.Masked().Addr().Unmap()))
}

// HandleDomainSearch handles GET /domains?name={pattern} requests.
func (h *Handler) HandleDomainSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	pattern := r.URL.Query().Get("name")
	exts := rdap.ParseExtensions(r.URL.Query().Get("extensions"))

	domains, err := h.service.SearchDomains(ctx, pattern, exts)
	if err != nil {
		h.writeFailure(ctx, w, kindDomainSearch, pattern, err)
		h.emit(ctx, kindDomainSearch, pattern, qlog.OutcomeError, start)
		return
	}
	h.writeRDAP(ctx, w, http.StatusOK, domainSearchEnvelope(domains))
	h.emit(ctx, kindDomainSearch, pattern, qlog.OutcomeFound, start)
}

// HandleNameserverSearch handles GET /nameservers?name={pattern} requests.
func (h *Handler) HandleNameserverSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	pattern := r.URL.Query().Get("name")
	exts := rdap.ParseExtensions(r.URL.Query().Get("extensions"))

	nameservers, err := h.service.SearchNameservers(ctx, pattern, exts)
	if err != nil {
		h.writeFailure(ctx, w, kindNameserverSearch, pattern, err)
		h.emit(ctx, kindNameserverSearch, pattern, qlog.OutcomeError, start)
		return
	}
	h.writeRDAP(ctx, w, http.StatusOK, nameserverSearchEnvelope(nameservers))
	h.emit(ctx, kindNameserverSearch, pattern, qlog.OutcomeFound, start)
}

// serveLookup runs one lookup query end to end: cache consult, resolve,
// encode, respond, and query-log emit.
func (h *Handler) serveLookup(w http.ResponseWriter, r *http.Request, q resolver.Query) {
	ctx := r.Context()
	start := time.Now()
	exts := rdap.ParseExtensions(r.URL.Query().Get("extensions"))
	key := cache.Key(string(q.Kind), q.Key, exts)

	entry, ok, err := h.cache.Get(ctx, key)
	if err != nil {
		// A broken cache degrades to a miss, never to a failed query.
		h.logger.WarnContext(ctx, "response cache read failed",
			"request_id", requestcontext.RequestID(ctx),
			"cache_key", key,
			"error", err,
		)
	}
	if ok {
		h.writeEntry(ctx, w, entry)
		h.emit(ctx, string(q.Kind), q.Key, outcomeOfStatus(entry.Status), start)
		return
	}

	// Concurrent identical queries share one resolve; the winning caller's
	// context governs the shared fill.
	v, err, _ := h.group.Do(key, func() (any, error) {
		obj, err := h.service.Resolve(ctx, q, exts)
		if err != nil {
			return nil, err
		}
		e, err := encodeEntry(obj)
		if err != nil {
			return nil, err
		}
		if err := h.cache.Set(ctx, key, e); err != nil {
			h.logger.WarnContext(ctx, "response cache write failed",
				"request_id", requestcontext.RequestID(ctx),
				"cache_key", key,
				"error", err,
			)
		}
		return e, nil
	})
	if err != nil {
		h.writeFailure(ctx, w, string(q.Kind), q.Key, err)
		h.emit(ctx, string(q.Kind), q.Key, outcomeOfErr(err), start)
		return
	}
	entry = v.(*cache.Entry)
	h.writeEntry(ctx, w, entry)
	h.emit(ctx, string(q.Kind), q.Key, outcomeOfStatus(entry.Status), start)
}

// rejectQuery refuses a request whose key never parsed into a typed query.
func (h *Handler) rejectQuery(w http.ResponseWriter, r *http.Request, kind, key, detail string) {
	ctx := r.Context()
	h.writeRDAPError(ctx, w, http.StatusBadRequest, "Bad Request", detail)
	h.emit(ctx, kind, key, qlog.OutcomeError, time.Now())
}

// writeFailure maps a resolver error onto its RDAP error response. Absence
// and invalid input get descriptive bodies; infrastructure failures are
// logged and answered without detail.
func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, kind, key string, err error) {
	switch {
	case errors.Is(err, resolver.ErrNotFound):
		h.writeRDAPError(ctx, w, http.StatusNotFound, "Not Found",
			fmt.Sprintf("no %s matches %q in this registry", kind, key))
	case errors.Is(err, resolver.ErrInvalidQueryValue), errors.Is(err, resolver.ErrAmbiguousQueryType):
		h.writeRDAPError(ctx, w, http.StatusBadRequest, "Bad Request", err.Error())
	default:
		h.logger.ErrorContext(ctx, "rdap query failed",
			"request_id", requestcontext.RequestID(ctx),
			"kind", kind,
			"key", key,
			"error", err,
		)
		h.writeRDAPError(ctx, w, http.StatusInternalServerError, "Internal Error")
	}
}

// emit hands one query event to the publisher. Publish never blocks; a full
// pipeline drops the event.
func (h *Handler) emit(ctx context.Context, kind, key string, outcome qlog.Outcome, start time.Time) {
	h.qlog.Publish(ctx, qlog.Event{
		ID:         uuid.New(),
		Time:       start.UTC(),
		Kind:       kind,
		Key:        key,
		Outcome:    outcome,
		DurationMS: time.Since(start).Milliseconds(),
		ClientIP:   requestcontext.ClientIP(ctx),
		UserAgent:  requestcontext.UserAgent(ctx),
	})
}

// ldhName maps a queried name to its LDH form. Pure-ASCII names pass
// through untouched; anything else goes through the IDNA lookup profile,
// which case-folds and validates before punycoding.
func ldhName(raw string) (string, error) {
	for i := 0; i < len(raw); i++ {
		if raw[i] >= utf8.RuneSelf {
			return idna.Lookup.ToASCII(raw)
		}
	}
	return raw, nil
}

func outcomeOfStatus(status int) qlog.Outcome {
	if status == http.StatusFound {
		return qlog.OutcomeRedirect
	}
	return qlog.OutcomeFound
}

func outcomeOfErr(err error) qlog.Outcome {
	if errors.Is(err, resolver.ErrNotFound) {
		return qlog.OutcomeNotFound
	}
	return qlog.OutcomeError
}
