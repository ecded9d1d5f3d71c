package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	QuotesPlaced      Counter
	QuotesSuppressed  Counter
	Reprices          Counter
	HedgesPlaced      Counter
	HedgesCapped      Counter
	FillsApplied      Counter
	DuplicateFills    Counter
	GatewayRejects    Counter
	FeedReconnects    Counter
	KillSwitchEngaged Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		QuotesPlaced:      n,
		QuotesSuppressed:  n,
		Reprices:          n,
		HedgesPlaced:      n,
		HedgesCapped:      n,
		FillsApplied:      n,
		DuplicateFills:    n,
		GatewayRejects:    n,
		FeedReconnects:    n,
		KillSwitchEngaged: n,
	}
}
