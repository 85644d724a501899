// Package catalog exposes typed marketplace reads and writes over the
// backend client: car listings, dealer profiles, reviews, and purchase
// leads. Its methods are the producers the fetch layer and query cache run.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/drivelane/datalayer/internal/app/domain/car"
	"github.com/drivelane/datalayer/internal/app/domain/dealer"
	"github.com/drivelane/datalayer/internal/app/domain/lead"
	"github.com/drivelane/datalayer/internal/app/domain/review"
	"github.com/drivelane/datalayer/internal/errors"
	"github.com/drivelane/datalayer/pkg/logger"
	"github.com/drivelane/datalayer/supabase/client"
)

// Service provides catalog reads and lead submission.
type Service struct {
	backend *client.Client
	log     *logger.Logger
}

// New constructs a catalog service.
func New(backend *client.Client, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("catalog")
	}
	return &Service{
		backend: backend,
		log:     log,
	}
}

// ListCars returns one zero-based page of car listings, newest first. A
// non-empty search term matches make or model, case-insensitively.
func (s *Service) ListCars(ctx context.Context, page, pageSize int, search string) ([]car.Car, error) {
	q := s.backend.From("cars").
		Select("*").
		Order("created_at", false).
		Page(page, pageSize)

	if term := sanitizeSearch(search); term != "" {
		q = q.Or(
			fmt.Sprintf("make.ilike.*%s*", term),
			fmt.Sprintf("model.ilike.*%s*", term),
		)
	}

	resp, err := q.Execute(ctx)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}

	var cars []car.Car
	if err := resp.JSON(&cars); err != nil {
		return nil, fmt.Errorf("decode cars: %w", err)
	}
	return cars, nil
}

// CountCars returns the total number of listings matching the search term.
func (s *Service) CountCars(ctx context.Context, search string) (int, error) {
	q := s.backend.From("cars").Select("id").Count("exact").Limit(1)
	if term := sanitizeSearch(search); term != "" {
		q = q.Or(
			fmt.Sprintf("make.ilike.*%s*", term),
			fmt.Sprintf("model.ilike.*%s*", term),
		)
	}

	resp, err := q.Execute(ctx)
	if err != nil {
		return 0, err
	}
	if err := resp.Err(); err != nil {
		return 0, err
	}

	total := resp.Total()
	if total < 0 {
		return 0, fmt.Errorf("backend omitted row count")
	}
	return total, nil
}

// ListFeaturedCars returns up to limit featured listings for the home rail.
func (s *Service) ListFeaturedCars(ctx context.Context, limit int) ([]car.Car, error) {
	if limit <= 0 {
		limit = 5
	}

	resp, err := s.backend.From("cars").
		Select("*").
		Eq("featured", true).
		Order("created_at", false).
		Limit(limit).
		Execute(ctx)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}

	var cars []car.Car
	if err := resp.JSON(&cars); err != nil {
		return nil, fmt.Errorf("decode cars: %w", err)
	}
	return cars, nil
}

// GetCar fetches a single listing by id.
func (s *Service) GetCar(ctx context.Context, id string) (car.Car, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return car.Car{}, errors.InvalidInput("A listing id is required.")
	}

	resp, err := s.backend.From("cars").
		Select("*").
		Eq("id", id).
		Single().
		Execute(ctx)
	if err != nil {
		return car.Car{}, err
	}
	if err := resp.Err(); err != nil {
		if errors.IsNotFound(err) {
			return car.Car{}, errors.NotFound("Listing")
		}
		return car.Car{}, err
	}

	var c car.Car
	if err := resp.JSON(&c); err != nil {
		return car.Car{}, fmt.Errorf("decode car: %w", err)
	}
	return c, nil
}

// GetDealer fetches a dealer profile by id.
func (s *Service) GetDealer(ctx context.Context, id string) (dealer.Dealer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return dealer.Dealer{}, errors.InvalidInput("A dealer id is required.")
	}

	resp, err := s.backend.From("dealers").
		Select("*").
		Eq("id", id).
		Single().
		Execute(ctx)
	if err != nil {
		return dealer.Dealer{}, err
	}
	if err := resp.Err(); err != nil {
		if errors.IsNotFound(err) {
			return dealer.Dealer{}, errors.NotFound("Dealer")
		}
		return dealer.Dealer{}, err
	}

	var d dealer.Dealer
	if err := resp.JSON(&d); err != nil {
		return dealer.Dealer{}, fmt.Errorf("decode dealer: %w", err)
	}
	return d, nil
}

// ListDealerCars returns one page of a dealer's inventory.
func (s *Service) ListDealerCars(ctx context.Context, dealerID string, page, pageSize int) ([]car.Car, error) {
	dealerID = strings.TrimSpace(dealerID)
	if dealerID == "" {
		return nil, errors.InvalidInput("A dealer id is required.")
	}

	resp, err := s.backend.From("cars").
		Select("*").
		Eq("dealer_id", dealerID).
		Order("created_at", false).
		Page(page, pageSize).
		Execute(ctx)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}

	var cars []car.Car
	if err := resp.JSON(&cars); err != nil {
		return nil, fmt.Errorf("decode cars: %w", err)
	}
	return cars, nil
}

// ListDealerReviews returns one page of reviews for a dealer, newest first.
func (s *Service) ListDealerReviews(ctx context.Context, dealerID string, page, pageSize int) ([]review.Review, error) {
	dealerID = strings.TrimSpace(dealerID)
	if dealerID == "" {
		return nil, errors.InvalidInput("A dealer id is required.")
	}

	resp, err := s.backend.From("reviews").
		Select("*").
		Eq("dealer_id", dealerID).
		Order("created_at", false).
		Page(page, pageSize).
		Execute(ctx)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}

	var reviews []review.Review
	if err := resp.JSON(&reviews); err != nil {
		return nil, fmt.Errorf("decode reviews: %w", err)
	}
	return reviews, nil
}

// ReviewSummary returns a dealer's aggregate rating via the
// dealer_review_summary stored procedure.
func (s *Service) ReviewSummary(ctx context.Context, dealerID string) (review.Summary, error) {
	dealerID = strings.TrimSpace(dealerID)
	if dealerID == "" {
		return review.Summary{}, errors.InvalidInput("A dealer id is required.")
	}

	resp, err := s.backend.RPC(ctx, "dealer_review_summary", map[string]string{
		"p_dealer_id": dealerID,
	})
	if err != nil {
		return review.Summary{}, err
	}
	if err := resp.Err(); err != nil {
		return review.Summary{}, err
	}

	// PostgREST returns set-returning functions as a one-element array and
	// scalar-returning ones as a bare object.
	body := gjson.ParseBytes(resp.Body)
	if body.IsArray() {
		arr := body.Array()
		if len(arr) == 0 {
			return review.Summary{DealerID: dealerID}, nil
		}
		body = arr[0]
	}

	return review.Summary{
		DealerID: dealerID,
		Average:  body.Get("average").Float(),
		Count:    int(body.Get("count").Int()),
	}, nil
}

// SubmitLead validates and submits a purchase inquiry, returning the stored
// row.
func (s *Service) SubmitLead(ctx context.Context, l lead.Lead) (lead.Lead, error) {
	l.CarID = strings.TrimSpace(l.CarID)
	l.DealerID = strings.TrimSpace(l.DealerID)
	l.Name = strings.TrimSpace(l.Name)
	l.Email = strings.TrimSpace(l.Email)

	if l.CarID == "" || l.DealerID == "" {
		return lead.Lead{}, errors.InvalidInput("The inquiry must reference a listing and a dealer.")
	}
	if l.Name == "" {
		return lead.Lead{}, errors.InvalidInput("Please provide your name.")
	}
	if l.Email == "" || !strings.Contains(l.Email, "@") {
		return lead.Lead{}, errors.InvalidInput("Please provide a valid email address.")
	}

	resp, err := s.backend.From("leads").Insert(ctx, l)
	if err != nil {
		return lead.Lead{}, err
	}
	if err := resp.Err(); err != nil {
		return lead.Lead{}, err
	}

	var created []lead.Lead
	if err := resp.JSON(&created); err != nil {
		return lead.Lead{}, fmt.Errorf("decode lead: %w", err)
	}
	if len(created) == 0 {
		return lead.Lead{}, fmt.Errorf("backend returned no representation")
	}

	s.log.WithField("lead_id", created[0].ID).
		WithField("car_id", l.CarID).
		Info("lead submitted")
	return created[0], nil
}

// sanitizeSearch strips characters that would alter the PostgREST or=()
// filter grammar.
func sanitizeSearch(term string) string {
	term = strings.TrimSpace(term)
	return strings.Map(func(r rune) rune {
		switch r {
		case ',', '(', ')', '*':
			return -1
		}
		return r
	}, term)
}
