package humblefax

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
)

// DefaultHistoryLimit applies when HistoryQuery.Limit is not positive.
const DefaultHistoryLimit = 50

// HistoryQuery selects a page of each feed. An empty Direction reads both.
type HistoryQuery struct {
	Limit     int
	Offset    int
	Direction Direction
}

type feed struct {
	direction     Direction
	path          string
	idsKey        string
	listKey       string
	defaultStatus string
}

var feeds = []feed{
	{Outbound, "/sentFaxes", "sentFaxIds", "sentFaxes", "unknown"},
	{Inbound, "/incomingFaxes", "incomingFaxIds", "incomingFaxes", "received"},
}

var detailPaths = []string{"/sentFax/%s", "/incomingFax/%s", "/sentFaxes/%s", "/incomingFaxes/%s"}

// History merges the sent and incoming feeds, newest first. Records without
// a creation time sort last. Failing feeds and ids are logged and skipped.
//
// Ordering compares CreatedAt as strings, which assumes both feeds report
// the same zero-padded ISO-8601 layout (e.g. "2024-01-02T03:04:05Z").
func (c *Client) History(ctx context.Context, q HistoryQuery) ([]Fax, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultHistoryLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	var all []Fax
	for _, f := range feeds {
		if q.Direction != "" && q.Direction != f.direction {
			continue
		}
		all = append(all, c.readFeed(ctx, f, q)...)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	// Lexical order is chronological for a shared ISO-8601 layout.
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt > all[j].CreatedAt })
	return all, nil
}

func (c *Client) readFeed(ctx context.Context, f feed, q HistoryQuery) []Fax {
	log := c.logger.With().Str("op", "history").Str("endpoint", f.path).Logger()

	resp, err := c.do(ctx, request{
		method:  http.MethodGet,
		path:    f.path,
		query:   url.Values{"limit": {strconv.Itoa(q.Limit)}, "offset": {strconv.Itoa(q.Offset)}},
		timeout: c.cfg.Timeouts.Call,
	})
	if err != nil {
		log.Error().Err(err).Msg("feed request failed")
		return nil
	}
	if resp.status != http.StatusOK {
		log.Warn().Int("status", resp.status).Msg("feed returned non-200")
		return nil
	}
	m, ok := decodeObject(resp.body)
	if !ok {
		log.Warn().Msg("feed returned malformed json")
		return nil
	}
	data, _ := object(m["data"])

	var out []Fax
	if ids, ok := data[f.idsKey].([]any); ok {
		if len(ids) > q.Limit {
			ids = ids[:q.Limit]
		}
		for _, raw := range ids {
			id := scalar(raw)
			if id == "" {
				continue
			}
			fax, err := c.Detail(ctx, id)
			if err != nil {
				log.Warn().Err(err).Str("fax_id", id).Msg("skipping fax without detail")
				continue
			}
			fax.Direction = f.direction
			out = append(out, *fax)
		}
	} else if list, ok := data[f.listKey].([]any); ok {
		for _, raw := range list {
			if obj, ok := object(raw); ok {
				out = append(out, parseFax(obj, f.direction, f.defaultStatus))
			}
		}
	}

	log.Info().Int("count", len(out)).Msg("feed read")
	return out
}

// Detail probes the four detail endpoints in order and returns the first
// 200 response. ErrNotFound means every candidate failed.
func (c *Client) Detail(ctx context.Context, id string) (*Fax, error) {
	a := c.firstOK(ctx, probeSpec{op: "detail", method: http.MethodGet, paths: expand(detailPaths, id), timeout: c.cfg.Timeouts.Call})
	switch a.outcome {
	case outcomeOK:
	case outcomeFatal:
		return nil, fmt.Errorf("fax detail %s: %w", id, a.err)
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	m, ok := decodeObject(a.body)
	if !ok {
		return nil, fmt.Errorf("%w: %s: malformed detail response", ErrNotFound, id)
	}
	obj := m
	if data, ok := object(m["data"]); ok {
		obj = data
		if sent, ok := object(data["sentFax"]); ok {
			obj = sent
		} else if in, ok := object(data["incomingFax"]); ok {
			obj = in
		}
	}

	fax := parseFax(obj, "", "unknown")
	if fax.ID == "" {
		fax.ID = id
	}
	return &fax, nil
}
