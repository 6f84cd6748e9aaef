package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/ArthurLewyin12/encore-backend/internal/logger"
)

type menuItemResponse struct {
	ID    string          `json:"id"`
	Price decimal.Decimal `json:"price"`
}

type optionResponse struct {
	ID              string          `json:"id"`
	PriceAdjustment decimal.Decimal `json:"price_adjustment"`
}

// HTTPReader asks the menu service for prices. Calls go through a circuit
// breaker and carry no automatic retries.
type HTTPReader struct {
	client  *resty.Client
	breaker *Breaker
}

func NewHTTPReader(baseURL string, log *logger.Logger) *HTTPReader {
	return &HTTPReader{
		client: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Accept", "application/json").
			SetRetryCount(0),
		breaker: NewBreaker("menu-catalog", log),
	}
}

func (r *HTTPReader) MenuItemPrice(ctx context.Context, menuItemID string) (decimal.Decimal, error) {
	var body menuItemResponse
	if err := r.get(ctx, "/menu-items/"+url.PathEscape(menuItemID), &body); err != nil {
		return decimal.Zero, err
	}
	return body.Price, nil
}

func (r *HTTPReader) OptionPriceAdjustment(ctx context.Context, optionID string) (decimal.Decimal, error) {
	var body optionResponse
	if err := r.get(ctx, "/menu-item-options/"+url.PathEscape(optionID), &body); err != nil {
		return decimal.Zero, err
	}
	return body.PriceAdjustment, nil
}

func (r *HTTPReader) get(ctx context.Context, path string, out interface{}) error {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		resp, err := r.client.R().
			SetContext(ctx).
			SetResult(out).
			Get(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		switch {
		case resp.StatusCode() == http.StatusNotFound:
			return nil, ErrNotFound
		case resp.IsError():
			return nil, fmt.Errorf("%w: menu service returned %d", ErrUnavailable, resp.StatusCode())
		}
		return nil, nil
	})
	return err
}
