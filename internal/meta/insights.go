package meta

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/adpilot/adpilot/internal/optimizer"
)

// insightFields are the metrics requested from the insights edge. The API
// returns numbers as strings; anything missing or unparsable stays out of
// the snapshot so downstream code sees it as absent, not zero.
var insightFields = []optimizer.Metric{
	optimizer.MetricImpressions,
	optimizer.MetricReach,
	optimizer.MetricClicks,
	optimizer.MetricSpend,
	optimizer.MetricCTR,
	optimizer.MetricCPC,
	optimizer.MetricCPM,
}

// GetInsights implements optimizer.MetricsGateway. Campaigns, ad sets and
// ads all expose the same insights edge, so entityID may be any of them.
// No rows for the window yields an empty snapshot: every metric absent.
func (c *Client) GetInsights(ctx context.Context, entityID string, window optimizer.Window) (optimizer.Snapshot, error) {
	params := url.Values{}
	names := make([]string, len(insightFields))
	for i, f := range insightFields {
		names[i] = string(f)
	}
	params.Set("fields", strings.Join(names, ","))

	switch {
	case window.Preset != "":
		params.Set("date_preset", window.Preset)
	case !window.Since.IsZero() && !window.Until.IsZero():
		params.Set("time_range", `{"since":"`+window.Since.Format("2006-01-02")+`","until":"`+window.Until.Format("2006-01-02")+`"}`)
	default:
		params.Set("date_preset", optimizer.PresetLast7d)
	}

	var resp struct {
		Data []map[string]any `json:"data"`
	}
	if err := c.get(ctx, entityID+"/insights", params, &resp); err != nil {
		return nil, err
	}

	snapshot := optimizer.Snapshot{}
	if len(resp.Data) == 0 {
		return snapshot, nil
	}

	row := resp.Data[0]
	for _, metric := range insightFields {
		if v, ok := parseMetric(row[string(metric)]); ok {
			snapshot[metric] = v
		}
	}
	return snapshot, nil
}

// parseMetric converts the API's stringly-typed metric values. Empty and
// missing values report false: they are absent data, never zero.
func parseMetric(raw any) (float64, bool) {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
