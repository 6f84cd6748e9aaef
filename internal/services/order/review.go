package order

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ArthurLewyin12/encore-backend/internal/logger"
	"github.com/ArthurLewyin12/encore-backend/internal/metrics"
	"github.com/ArthurLewyin12/encore-backend/internal/models"
)

// SubmitReview records a review for an order owned by req.ClientID. Orders
// that do not exist and orders owned by someone else both report NotFound.
func (s *Service) SubmitReview(ctx context.Context, orderID string, req *models.SubmitReviewRequest) (*models.Review, error) {
	ctx, span := s.tracer.Start(ctx, "order.submit_review")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if !models.IsUUID(orderID) {
		return nil, status.Error(codes.NotFound, "order not found")
	}

	review := &models.Review{
		ID:         uuid.NewString(),
		OrderID:    orderID,
		ClientID:   req.ClientID,
		ClientName: req.ClientName,
		Rating:     req.Rating,
		Comment:    req.Comment,
		CreatedAt:  s.now(),
	}

	err := s.store.CreateReview(ctx, review)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, status.Error(codes.NotFound, "order not found")
	case errors.Is(err, ErrAlreadyReview):
		return nil, status.Error(codes.AlreadyExists, "order already reviewed")
	case err != nil:
		return nil, s.internal(ctx, "failed to submit review", err)
	}

	metrics.ReviewsSubmitted.WithLabelValues(strconv.Itoa(review.Rating)).Inc()

	s.logger.Info("review_submitted", "Review submitted", logger.RequestID(ctx), map[string]interface{}{
		"order_id":      review.OrderID,
		"restaurant_id": review.RestaurantID,
		"rating":        review.Rating,
	})

	return review, nil
}

// GetRestaurantReviews lists reviews newest first.
func (s *Service) GetRestaurantReviews(ctx context.Context, restaurantID string) ([]models.Review, error) {
	if !models.IsUUID(restaurantID) {
		return []models.Review{}, nil
	}
	reviews, err := s.store.ListReviews(ctx, restaurantID)
	if err != nil {
		return nil, s.internal(ctx, "failed to load reviews", err)
	}
	return nonNil(reviews), nil
}
