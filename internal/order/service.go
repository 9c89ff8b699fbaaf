package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/farm-checkout/internal/marketplace"
	"github.com/vasiliy-maslov/farm-checkout/internal/validation"
)

var (
	ErrUnknownCategory = errors.New("unknown order category")
	ErrNotReviewable   = errors.New("order cannot be reviewed yet")
)

type Marketplace interface {
	Orders(ctx context.Context) ([]json.RawMessage, error)
	SubmitReview(ctx context.Context, req marketplace.ReviewRequest) (string, error)
}

type Service interface {
	ListOrders(ctx context.Context, category Category) (*ListResult, error)
	SubmitReview(ctx context.Context, review Review) (string, error)
}

type service struct {
	market Marketplace
	now    func() time.Time
}

func NewService(market Marketplace) Service {
	return &service{
		market: market,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) ListOrders(ctx context.Context, category Category) (*ListResult, error) {
	if _, ok := ParseCategory(category.String()); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
	if category == "" {
		category = CategoryAll
	}

	orders, skipped, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}

	return &ListResult{
		Category: category,
		Orders:   Filter(orders, category),
		Counts:   Count(orders),
		Skipped:  skipped,
		Fetched:  s.now(),
	}, nil
}

// SubmitReview is only accepted for orders sitting on the to_review tab.
func (s *service) SubmitReview(ctx context.Context, review Review) (string, error) {
	review.OrderID = strings.TrimSpace(review.OrderID)
	review.Comment = strings.TrimSpace(review.Comment)
	if err := validation.Struct(review); err != nil {
		return "", err
	}

	orders, _, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}

	var target *Order
	for i := range orders {
		if orders[i].ID == review.OrderID {
			target = &orders[i]
			break
		}
	}
	if target == nil || !Matches(*target, CategoryToReview) {
		log.Warn().Str("order_id", review.OrderID).Msg("service: review rejected, order not awaiting review")
		return "", fmt.Errorf("%w: %s", ErrNotReviewable, review.OrderID)
	}

	msg, err := s.market.SubmitReview(ctx, marketplace.ReviewRequest{
		OrderID: review.OrderID,
		Rating:  review.Rating,
		Comment: review.Comment,
	})
	if err != nil {
		log.Error().Err(err).Str("order_id", review.OrderID).Msg("service: failed to submit review")
		return "", fmt.Errorf("service: submit review: %w", err)
	}

	log.Info().Str("order_id", review.OrderID).Int("rating", review.Rating).Msg("service: review submitted")
	if msg == "" {
		msg = "Thank you for your review!"
	}
	return msg, nil
}

func (s *service) fetch(ctx context.Context) ([]Order, int, error) {
	raw, err := s.market.Orders(ctx)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to fetch orders")
		return nil, 0, fmt.Errorf("service: fetch orders: %w", err)
	}

	orders := make([]Order, 0, len(raw))
	skipped := 0
	for _, r := range raw {
		o, err := Decode(r)
		if err != nil {
			skipped++
			log.Warn().Err(err).Msg("service: skipping undecodable order record")
			continue
		}
		orders = append(orders, o)
	}
	return orders, skipped, nil
}
