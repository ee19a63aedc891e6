package execution

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nautilus-go/kernel/internal/order"
	"github.com/nautilus-go/kernel/internal/value"
)

// HTTPExecutionClient is a generic, venue-agnostic live execution client:
// it POSTs/DELETEs against a venue's REST order-management endpoints and
// relies on a separate event feed (not this type) to deliver resulting
// OrderEvents back to the Engine via ProcessVenueEvent.
type HTTPExecutionClient struct {
	venue  value.Venue
	http   *resty.Client
	dryRun bool
	logger *slog.Logger
}

// HTTPExecutionClientConfig configures one venue's REST endpoint.
type HTTPExecutionClientConfig struct {
	Venue   value.Venue
	BaseURL string
	DryRun  bool
}

// NewHTTPExecutionClient builds a resty-backed client with retry on 5xx and
// a bounded request timeout, mirroring the retry/backoff shape used
// throughout this kernel's REST integrations.
func NewHTTPExecutionClient(cfg HTTPExecutionClientConfig, logger *slog.Logger) *HTTPExecutionClient {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &HTTPExecutionClient{
		venue:  cfg.Venue,
		http:   httpClient,
		dryRun: cfg.DryRun,
		logger: logger.With("component", "http-execution-client", "venue", string(cfg.Venue)),
	}
}

func (c *HTTPExecutionClient) Venue() value.Venue { return c.venue }

type submitPayload struct {
	ClientOrderId string  `json:"client_order_id"`
	InstrumentId  string  `json:"instrument_id"`
	Side          string  `json:"side"`
	Type          string  `json:"type"`
	Quantity      string  `json:"quantity"`
	Price         *string `json:"price,omitempty"`
	TriggerPrice  *string `json:"trigger_price,omitempty"`
	TimeInForce   string  `json:"time_in_force"`
}

func (c *HTTPExecutionClient) Submit(ctx context.Context, o *order.Order) error {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would submit order", "client_order_id", o.ClientOrderId)
		return nil
	}

	payload := submitPayload{
		ClientOrderId: string(o.ClientOrderId),
		InstrumentId:  o.InstrumentId.String(),
		Side:          o.Side.String(),
		Type:          o.Type.String(),
		Quantity:      o.Quantity.String(),
		TimeInForce:   o.TimeInForce.Kind.String(),
	}
	if o.Price != nil {
		s := o.Price.String()
		payload.Price = &s
	}
	if o.TriggerPrice != nil {
		s := o.TriggerPrice.String()
		payload.TriggerPrice = &s
	}

	resp, err := c.http.R().SetContext(ctx).SetBody(payload).Post("/orders")
	if err != nil {
		return fmt.Errorf("submit order: %w", err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("submit order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func (c *HTTPExecutionClient) Modify(ctx context.Context, cmd ModifyOrder) error {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would modify order", "client_order_id", cmd.ClientOrderId)
		return nil
	}

	payload := map[string]any{"client_order_id": string(cmd.ClientOrderId)}
	if cmd.Price != nil {
		payload["price"] = cmd.Price.String()
	}
	if cmd.Quantity != nil {
		payload["quantity"] = cmd.Quantity.String()
	}

	resp, err := c.http.R().SetContext(ctx).SetBody(payload).Put(fmt.Sprintf("/orders/%s", cmd.ClientOrderId))
	if err != nil {
		return fmt.Errorf("modify order: %w", err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("modify order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func (c *HTTPExecutionClient) Cancel(ctx context.Context, cmd CancelOrder) error {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel order", "client_order_id", cmd.ClientOrderId)
		return nil
	}

	resp, err := c.http.R().SetContext(ctx).Delete(fmt.Sprintf("/orders/%s", cmd.ClientOrderId))
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("cancel order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
