// Package testbackend runs an in-process fake of the backend REST API for
// tests. It speaks enough of the PostgREST dialect for the catalog service:
// eq/ilike/or filters, ordering, limit/offset, exact counts, single-object
// responses, and lead inserts.
package testbackend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/drivelane/datalayer/internal/app/domain/car"
	"github.com/drivelane/datalayer/internal/app/domain/dealer"
	"github.com/drivelane/datalayer/internal/app/domain/lead"
	"github.com/drivelane/datalayer/internal/app/domain/review"
)

// Server is a fake backend. Mutate the exported slices before issuing
// requests; they are read under the server's lock.
type Server struct {
	mu      sync.Mutex
	Cars    []car.Car
	Dealers []dealer.Dealer
	Reviews []review.Review
	Leads   []lead.Lead

	// FailWith, when non-zero, makes every request fail with this status.
	FailWith int
	// Hits counts requests per path for assertion in tests.
	Hits map[string]int

	srv *httptest.Server
}

// New starts a fake backend. Callers must Close it.
func New() *Server {
	s := &Server{Hits: make(map[string]int)}

	r := chi.NewRouter()
	r.Get("/rest/v1/cars", s.handleCars)
	r.Get("/rest/v1/dealers", s.handleDealers)
	r.Get("/rest/v1/reviews", s.handleReviews)
	r.Post("/rest/v1/leads", s.handleLeadInsert)
	r.Post("/rest/v1/rpc/dealer_review_summary", s.handleReviewSummary)

	s.srv = httptest.NewServer(r)
	return s
}

// URL returns the base URL of the fake backend.
func (s *Server) URL() string { return s.srv.URL }

// Close shuts the server down.
func (s *Server) Close() { s.srv.Close() }

// HitCount returns how many requests the path has received.
func (s *Server) HitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Hits[path]
}

// begin records the hit and applies forced failure. It returns false when
// the request was already answered.
func (s *Server) begin(w http.ResponseWriter, r *http.Request) bool {
	s.mu.Lock()
	s.Hits[r.URL.Path]++
	fail := s.FailWith
	s.mu.Unlock()

	if fail != 0 {
		w.WriteHeader(fail)
		fmt.Fprintf(w, `{"message":"forced failure"}`)
		return false
	}
	return true
}

func (s *Server) handleCars(w http.ResponseWriter, r *http.Request) {
	if !s.begin(w, r) {
		return
	}

	s.mu.Lock()
	rows := make([]car.Car, len(s.Cars))
	copy(rows, s.Cars)
	s.mu.Unlock()

	q := r.URL.Query()
	rows = filterCars(rows, q)
	sortByCreatedAtDesc(q.Get("order"), rows)
	total := len(rows)
	rows = window(rows, q)

	if wantsSingleObject(r) {
		writeSingle(w, rows)
		return
	}
	writeRows(w, r, rows, total)
}

func filterCars(rows []car.Car, q map[string][]string) []car.Car {
	out := rows[:0]
	for _, c := range rows {
		if v, ok := first(q, "id"); ok && "eq."+c.ID != v {
			continue
		}
		if v, ok := first(q, "dealer_id"); ok && "eq."+c.DealerID != v {
			continue
		}
		if v, ok := first(q, "featured"); ok && v != "eq."+strconv.FormatBool(c.Featured) {
			continue
		}
		if v, ok := first(q, "or"); ok && !matchesSearch(c, v) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// matchesSearch handles the (make.ilike.*term*,model.ilike.*term*) shape the
// catalog service emits.
func matchesSearch(c car.Car, raw string) bool {
	raw = strings.Trim(raw, "()")
	for _, cond := range strings.Split(raw, ",") {
		parts := strings.SplitN(cond, ".ilike.", 2)
		if len(parts) != 2 {
			continue
		}
		term := strings.ToLower(strings.Trim(parts[1], "*"))
		var field string
		switch parts[0] {
		case "make":
			field = c.Make
		case "model":
			field = c.Model
		default:
			continue
		}
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

func (s *Server) handleDealers(w http.ResponseWriter, r *http.Request) {
	if !s.begin(w, r) {
		return
	}

	s.mu.Lock()
	rows := make([]dealer.Dealer, len(s.Dealers))
	copy(rows, s.Dealers)
	s.mu.Unlock()

	q := r.URL.Query()
	matched := rows[:0]
	for _, d := range rows {
		if v, ok := first(q, "id"); ok && "eq."+d.ID != v {
			continue
		}
		matched = append(matched, d)
	}

	if wantsSingleObject(r) {
		writeSingle(w, matched)
		return
	}
	writeRows(w, r, matched, len(matched))
}

func (s *Server) handleReviews(w http.ResponseWriter, r *http.Request) {
	if !s.begin(w, r) {
		return
	}

	s.mu.Lock()
	rows := make([]review.Review, len(s.Reviews))
	copy(rows, s.Reviews)
	s.mu.Unlock()

	q := r.URL.Query()
	matched := rows[:0]
	for _, rv := range rows {
		if v, ok := first(q, "dealer_id"); ok && "eq."+rv.DealerID != v {
			continue
		}
		matched = append(matched, rv)
	}
	total := len(matched)
	matched = window(matched, q)

	writeRows(w, r, matched, total)
}

func (s *Server) handleLeadInsert(w http.ResponseWriter, r *http.Request) {
	if !s.begin(w, r) {
		return
	}

	var l lead.Lead
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, `{"message":"invalid body"}`)
		return
	}

	s.mu.Lock()
	l.ID = fmt.Sprintf("lead-%d", len(s.Leads)+1)
	l.CreatedAt = time.Now().UTC()
	s.Leads = append(s.Leads, l)
	s.mu.Unlock()

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode([]lead.Lead{l})
}

func (s *Server) handleReviewSummary(w http.ResponseWriter, r *http.Request) {
	if !s.begin(w, r) {
		return
	}

	var params struct {
		DealerID string `json:"p_dealer_id"`
	}
	json.NewDecoder(r.Body).Decode(&params)

	s.mu.Lock()
	var sum float64
	var count int
	for _, rv := range s.Reviews {
		if rv.DealerID == params.DealerID {
			sum += float64(rv.Rating)
			count++
		}
	}
	s.mu.Unlock()

	avg := 0.0
	if count > 0 {
		avg = sum / float64(count)
	}
	json.NewEncoder(w).Encode(map[string]any{
		"average": avg,
		"count":   count,
	})
}

func first(q map[string][]string, key string) (string, bool) {
	if vs, ok := q[key]; ok && len(vs) > 0 {
		return vs[0], true
	}
	return "", false
}

func wantsSingleObject(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "vnd.pgrst.object")
}

func sortByCreatedAtDesc(order string, rows []car.Car) {
	if !strings.HasPrefix(order, "created_at") {
		return
	}
	desc := strings.HasSuffix(order, ".desc")
	for i := 1; i < len(rows); i++ {
		for j := i; j > 0; j-- {
			after := rows[j].CreatedAt.After(rows[j-1].CreatedAt)
			if (desc && after) || (!desc && !after) {
				rows[j], rows[j-1] = rows[j-1], rows[j]
			} else {
				break
			}
		}
	}
}

func window[T any](rows []T, q map[string][]string) []T {
	offset := 0
	if v, ok := first(q, "offset"); ok {
		offset, _ = strconv.Atoi(v)
	}
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]

	if v, ok := first(q, "limit"); ok {
		if limit, err := strconv.Atoi(v); err == nil && limit < len(rows) {
			rows = rows[:limit]
		}
	}
	return rows
}

func writeSingle[T any](w http.ResponseWriter, rows []T) {
	if len(rows) == 0 {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"message":"row not found"}`)
		return
	}
	json.NewEncoder(w).Encode(rows[0])
}

func writeRows[T any](w http.ResponseWriter, r *http.Request, rows []T, total int) {
	if strings.Contains(r.Header.Get("Prefer"), "count=") {
		end := len(rows) - 1
		if end < 0 {
			end = 0
		}
		w.Header().Set("Content-Range", fmt.Sprintf("0-%d/%d", end, total))
	}
	if rows == nil {
		rows = []T{}
	}
	json.NewEncoder(w).Encode(rows)
}
