package appointment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/roshita-planner/internal/model"
	"github.com/jwalitptl/roshita-planner/pkg/errors"
	"github.com/jwalitptl/roshita-planner/pkg/logger"
	"github.com/jwalitptl/roshita-planner/pkg/metrics"
	"github.com/jwalitptl/roshita-planner/pkg/roshita"
)

const (
	DefaultPageSize = 5
	MaxPageSize     = 100
	defaultMaxPages = 100
)

// Backend is the subset of the Roshita client this package needs.
type Backend interface {
	SearchReservations(ctx context.Context, token string, page, doctorID int) (*roshita.Page[model.Reservation], error)
	CancelReservation(ctx context.Context, token string, id int) (*roshita.Call, error)
	CompleteReservation(ctx context.Context, token string, id int) (*roshita.Call, error)
	MarkNotAttend(ctx context.Context, token string, id int) (*roshita.Call, error)
	FollowUpSameDoctor(ctx context.Context, token string, req model.FollowUpRequest) (*roshita.Call, error)
	CreateDoctorSuggestion(ctx context.Context, token string, s model.DoctorSuggestion) (*roshita.Call, error)
}

// Scope selects whose appointments are listed. DoctorID 0 means the whole clinic.
type Scope struct {
	DoctorID int
}

const (
	ScopeAll    = "all"
	ScopeDoctor = "doctor"
)

// ParseScope reads the query form. A doctor scope needs a doctor id.
func ParseScope(kind string, doctorID int) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", ScopeAll:
		return Scope{}, nil
	case ScopeDoctor:
		if doctorID <= 0 {
			return Scope{}, errors.BadRequest("doctor scope requires doctor_id", nil)
		}
		return Scope{DoctorID: doctorID}, nil
	}
	return Scope{}, errors.BadRequest(fmt.Sprintf("unknown scope %q", kind), nil)
}

func (s Scope) String() string {
	if s.DoctorID > 0 {
		return ScopeDoctor + ":" + strconv.Itoa(s.DoctorID)
	}
	return ScopeAll
}

// Actor is who performs a call: the session's user and bearer token.
type Actor struct {
	UserID string
	Token  string
}

// owner scopes cached data to the bearer that fetched it. The user id claim
// is read unverified, so it only groups entries for invalidation; the token
// digest is what a cache hit has to match.
func (a Actor) owner() string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(a.Token)))
	return a.UserID + "|" + hex.EncodeToString(sum[:16]) + "|"
}

// Lister fetches and caches the full reservation list per user and scope.
type Lister struct {
	backend  Backend
	cache    *cache.Cache
	maxPages int
	pageSize int
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

func NewLister(backend Backend, ttl time.Duration, maxPages int, m *metrics.Metrics, log *logger.Logger) *Lister {
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Lister{
		backend:  backend,
		cache:    cache.New(ttl, 2*ttl),
		maxPages: maxPages,
		pageSize: DefaultPageSize,
		metrics:  m,
		logger:   log.With("component", "appointment_list"),
	}
}

// WithPageSize sets the page size used when a caller does not ask for one.
func (l *Lister) WithPageSize(n int) *Lister {
	if n > 0 {
		l.pageSize = min(n, MaxPageSize)
	}
	return l
}

func (l *Lister) PageSize() int {
	return l.pageSize
}

// FetchAll walks the backend pages one after another until there is no next
// page. The walk stops at maxPages.
func (l *Lister) FetchAll(ctx context.Context, token string, doctorID int) ([]model.Reservation, error) {
	if strings.TrimSpace(token) == "" {
		l.logger.Warn("appointment fetch skipped, no bearer token")
		return nil, errors.AuthMissing()
	}

	var all []model.Reservation
	for page := 1; page <= l.maxPages; page++ {
		res, err := l.backend.SearchReservations(ctx, token, page, doctorID)
		if err != nil {
			l.logger.Error(err, "failed to fetch appointments", "page", page, "doctor_id", doctorID)
			return nil, err
		}
		all = append(all, res.Results...)
		if !res.HasNext() {
			return all, nil
		}
	}
	l.logger.Warn("appointment fetch stopped at page limit", "max_pages", l.maxPages)
	return all, nil
}

// List returns the full unfiltered list for scope, served from cache when fresh.
func (l *Lister) List(ctx context.Context, actor Actor, scope Scope) ([]model.Reservation, error) {
	key := cacheKey(actor, scope)
	if v, ok := l.cache.Get(key); ok {
		l.metrics.CacheHits.WithLabelValues(scopeLabel(scope)).Inc()
		return v.([]model.Reservation), nil
	}
	l.metrics.CacheMisses.WithLabelValues(scopeLabel(scope)).Inc()

	list, err := l.FetchAll(ctx, actor.Token, scope.DoctorID)
	if err != nil {
		return nil, err
	}
	l.cache.Set(key, list, cache.DefaultExpiration)
	return list, nil
}

// Invalidate drops every cached scope of userID, whichever token fetched it.
func (l *Lister) Invalidate(userID string) {
	prefix := userID + "|"
	for key := range l.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			l.cache.Delete(key)
		}
	}
}

// Lookup finds a reservation in any list cached for actor's token.
func (l *Lister) Lookup(actor Actor, id int) (model.Reservation, bool) {
	prefix := actor.owner()
	for key, item := range l.cache.Items() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		list, ok := item.Object.([]model.Reservation)
		if !ok {
			continue
		}
		for _, r := range list {
			if r.ID == id {
				return r, true
			}
		}
	}
	return model.Reservation{}, false
}

func cacheKey(actor Actor, scope Scope) string {
	return actor.owner() + scope.String()
}

func scopeLabel(scope Scope) string {
	if scope.DoctorID > 0 {
		return ScopeDoctor
	}
	return ScopeAll
}

// Actionable keeps the reservations that still accept lifecycle actions.
func Actionable(list []model.Reservation) []model.Reservation {
	out := make([]model.Reservation, 0, len(list))
	for _, r := range list {
		if r.Actionable() {
			out = append(out, r)
		}
	}
	return out
}

// SortByDate orders by date then start time, ascending. Unparseable dates
// sort last; ties keep their backend order.
func SortByDate(list []model.Reservation) []model.Reservation {
	out := make([]model.Reservation, len(list))
	copy(out, list)
	sort.SliceStable(out, func(i, j int) bool {
		ti, okI := out[i].ScheduledAt()
		tj, okJ := out[j].ScheduledAt()
		switch {
		case okI && okJ:
			return ti.Before(tj)
		case okI:
			return true
		default:
			return false
		}
	})
	return out
}

// Page is one client-side page of the filtered list.
type Page struct {
	Items      []model.Reservation `json:"items"`
	Page       int                 `json:"page"`
	PageSize   int                 `json:"page_size"`
	Total      int                 `json:"total"`
	TotalPages int                 `json:"total_pages"`
}

// Paginate slices list. TotalPages is ceil(len(list)/pageSize); a page past
// the end is empty.
func Paginate(list []model.Reservation, page, pageSize int) Page {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if page < 1 {
		page = 1
	}
	total := len(list)
	p := Page{
		Items:      []model.Reservation{},
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: pageCount(total, pageSize),
	}

	// compare before multiplying; page comes straight from the query string
	if page > p.TotalPages {
		return p
	}
	start := (page - 1) * pageSize
	end := total
	if pageSize < total-start {
		end = start + pageSize
	}
	p.Items = list[start:end]
	return p
}

// pageCount is ceil(total/pageSize) without the overflow of total+pageSize.
func pageCount(total, pageSize int) int {
	if total == 0 {
		return 0
	}
	return (total-1)/pageSize + 1
}

// Summarize counts reservations per status, for the dashboard charts.
func Summarize(list []model.Reservation) map[string]int {
	counts := make(map[string]int)
	for _, r := range list {
		counts[string(r.Status)]++
	}
	return counts
}
