package exchange

import (
	"context"

	"perp-trader/internal/models"
	"perp-trader/internal/resilience"
	"perp-trader/pkg/utils"
)

// ResilientClient wraps a Client with retry and a circuit breaker.
// Read-style calls retry with backoff; order placement does not retry,
// because a timed-out order may have filled and a blind resubmit would
// double the position. Every call feeds the shared breaker.
type ResilientClient struct {
	inner   Client
	breaker *resilience.Breaker
	retry   utils.RetryConfig
}

// NewResilientClient wraps inner with the default retry and breaker
// settings.
func NewResilientClient(inner Client) *ResilientClient {
	return &ResilientClient{
		inner:   inner,
		breaker: resilience.NewBreaker(resilience.DefaultConfig()),
		retry:   utils.DefaultRetryConfig(),
	}
}

// Breaker exposes the underlying breaker for status inspection.
func (c *ResilientClient) Breaker() *resilience.Breaker {
	return c.breaker
}

func retryCall[T any](ctx context.Context, c *ResilientClient, fn func() (T, error)) (T, error) {
	var zero T
	if err := c.breaker.Allow(); err != nil {
		return zero, err
	}
	result, err := utils.RetryWithResult(ctx, c.retry, fn)
	c.breaker.Record(err)
	return result, err
}

func onceCall[T any](c *ResilientClient, fn func() (T, error)) (T, error) {
	var zero T
	if err := c.breaker.Allow(); err != nil {
		return zero, err
	}
	result, err := fn()
	c.breaker.Record(err)
	return result, err
}

func (c *ResilientClient) GetAccountBalance(ctx context.Context) (models.AccountSnapshot, error) {
	return retryCall(ctx, c, func() (models.AccountSnapshot, error) {
		return c.inner.GetAccountBalance(ctx)
	})
}

func (c *ResilientClient) GetPositions(ctx context.Context) ([]models.Position, error) {
	return retryCall(ctx, c, func() ([]models.Position, error) {
		return c.inner.GetPositions(ctx)
	})
}

func (c *ResilientClient) GetMarketPrice(ctx context.Context, symbol string) (float64, error) {
	return retryCall(ctx, c, func() (float64, error) {
		return c.inner.GetMarketPrice(ctx, symbol)
	})
}

func (c *ResilientClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Kline, error) {
	return retryCall(ctx, c, func() ([]models.Kline, error) {
		return c.inner.GetKlines(ctx, symbol, interval, limit)
	})
}

func (c *ResilientClient) GetFundingRate(ctx context.Context, symbol string) (*float64, error) {
	return retryCall(ctx, c, func() (*float64, error) {
		return c.inner.GetFundingRate(ctx, symbol)
	})
}

func (c *ResilientClient) OpenLong(ctx context.Context, symbol string, quantity float64, leverage int) (models.OrderResult, error) {
	return onceCall(c, func() (models.OrderResult, error) {
		return c.inner.OpenLong(ctx, symbol, quantity, leverage)
	})
}

func (c *ResilientClient) OpenShort(ctx context.Context, symbol string, quantity float64, leverage int) (models.OrderResult, error) {
	return onceCall(c, func() (models.OrderResult, error) {
		return c.inner.OpenShort(ctx, symbol, quantity, leverage)
	})
}

func (c *ResilientClient) ClosePosition(ctx context.Context, symbol string, side models.PositionSide, quantity *float64) (models.CloseResult, error) {
	return onceCall(c, func() (models.CloseResult, error) {
		return c.inner.ClosePosition(ctx, symbol, side, quantity)
	})
}

func (c *ResilientClient) PlaceProtectiveOrders(ctx context.Context, req ProtectiveOrderRequest) error {
	_, err := onceCall(c, func() (struct{}, error) {
		return struct{}{}, c.inner.PlaceProtectiveOrders(ctx, req)
	})
	return err
}

func (c *ResilientClient) CancelAllOrders(ctx context.Context, symbol string) error {
	_, err := retryCall(ctx, c, func() (struct{}, error) {
		return struct{}{}, c.inner.CancelAllOrders(ctx, symbol)
	})
	return err
}

func (c *ResilientClient) Close() error {
	return c.inner.Close()
}
