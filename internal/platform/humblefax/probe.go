package humblefax

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// outcome tags a single candidate attempt.
type outcome int

const (
	outcomeOK outcome = iota
	outcomeNotFound
	outcomeTransient
	outcomeFatal
)

func (o outcome) String() string {
	switch o {
	case outcomeOK:
		return "ok"
	case outcomeNotFound:
		return "not_found"
	case outcomeTransient:
		return "transient"
	default:
		return "fatal"
	}
}

type attempt struct {
	path    string
	status  int
	body    []byte
	err     error
	outcome outcome
}

// classifier maps a response status to an outcome. Transport errors are
// always transient unless the parent context is done.
type classifier func(status int) outcome

func defaultClassifier(status int) outcome {
	switch status {
	case http.StatusOK:
		return outcomeOK
	case http.StatusNotFound:
		return outcomeNotFound
	default:
		return outcomeTransient
	}
}

// authClassifier stops probing on 401.
func authClassifier(status int) outcome {
	if status == http.StatusUnauthorized {
		return outcomeFatal
	}
	return defaultClassifier(status)
}

type probeSpec struct {
	op       string
	method   string
	paths    []string
	query    url.Values
	timeout  time.Duration
	classify classifier
}

func (c *Client) try(ctx context.Context, pr probeSpec, path string) attempt {
	resp, err := c.do(ctx, request{method: pr.method, path: path, query: pr.query, timeout: pr.timeout})
	if err != nil {
		a := attempt{path: path, err: err, outcome: outcomeTransient}
		if ctx.Err() != nil {
			a.outcome = outcomeFatal
		}
		return a
	}
	classify := pr.classify
	if classify == nil {
		classify = defaultClassifier
	}
	return attempt{path: path, status: resp.status, body: resp.body, outcome: classify(resp.status)}
}

// firstOK tries each candidate path in order and returns the attempt that
// ended the probe: the first OK, the first Fatal, or the last candidate.
func (c *Client) firstOK(ctx context.Context, pr probeSpec) attempt {
	last := attempt{outcome: outcomeNotFound}
	for _, p := range pr.paths {
		last = c.try(ctx, pr, p)
		log := c.logger.With().Str("op", pr.op).Str("endpoint", p).Logger()
		switch last.outcome {
		case outcomeOK, outcomeFatal:
			if last.outcome == outcomeFatal {
				log.Warn().Err(last.err).Int("status", last.status).Msg("probe aborted")
			}
			return last
		case outcomeNotFound:
			log.Debug().Msg("not found, trying next endpoint")
		case outcomeTransient:
			log.Warn().Err(last.err).Int("status", last.status).Msg("endpoint failed, trying next")
		}
	}
	return last
}
