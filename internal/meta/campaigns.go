package meta

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"
)

// UpdateStatus implements part of optimizer.CampaignGateway: sets the
// delivery status (ACTIVE or PAUSED) of a campaign, ad set or ad. Setting
// the status an entity already has is a success on the platform side.
func (c *Client) UpdateStatus(ctx context.Context, entityID, status string) error {
	params := url.Values{}
	params.Set("status", status)

	var resp struct {
		Success bool `json:"success"`
	}
	if err := c.post(ctx, entityID, params, &resp); err != nil {
		return fmt.Errorf("updating status of %s: %w", entityID, err)
	}

	c.log.Info("status updated", zap.String("entity_id", entityID), zap.String("status", status))
	return nil
}

// GetDailyBudget implements part of optimizer.CampaignGateway. It returns 0
// without error when the entity carries no daily budget of its own
// (lifetime budget, or budget held at the ad-set level).
func (c *Client) GetDailyBudget(ctx context.Context, entityID string) (int64, error) {
	params := url.Values{}
	params.Set("fields", "daily_budget,lifetime_budget")

	var resp struct {
		DailyBudget    string `json:"daily_budget"`
		LifetimeBudget string `json:"lifetime_budget"`
		ID             string `json:"id"`
	}
	if err := c.get(ctx, entityID, params, &resp); err != nil {
		return 0, fmt.Errorf("fetching budget of %s: %w", entityID, err)
	}

	if resp.DailyBudget == "" {
		return 0, nil
	}
	budget, err := strconv.ParseInt(resp.DailyBudget, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing daily budget %q of %s: %w", resp.DailyBudget, entityID, err)
	}
	return budget, nil
}

// UpdateDailyBudget implements part of optimizer.CampaignGateway. The value
// is in minor currency units, as the API expects.
func (c *Client) UpdateDailyBudget(ctx context.Context, entityID string, minorUnits int64) error {
	params := url.Values{}
	params.Set("daily_budget", strconv.FormatInt(minorUnits, 10))

	var resp struct {
		Success bool `json:"success"`
	}
	if err := c.post(ctx, entityID, params, &resp); err != nil {
		return fmt.Errorf("updating budget of %s: %w", entityID, err)
	}

	c.log.Info("budget updated", zap.String("entity_id", entityID), zap.Int64("daily_budget", minorUnits))
	return nil
}
