package metrics

// Metrics holds language model usage for a time period.
type Metrics struct {
	requests int
	tokens   int
}

// New creates a Metrics snapshot.
func New(requests, tokens int) Metrics {
	return Metrics{requests: requests, tokens: tokens}
}

// Requests returns the number of language model calls that reached the provider.
func (m Metrics) Requests() int { return m.requests }

// Tokens returns the total tokens consumed.
func (m Metrics) Tokens() int { return m.tokens }
