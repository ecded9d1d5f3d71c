package strategy

// Snapshot is everything a quoting policy may read on one cycle. It is an
// immutable copy assembled by the engine; policies never touch live state.
type Snapshot struct {
	FairValue   float64
	FairValueOK bool
	Residual    float64
	ResidualStd float64

	EtfMid     float64
	EtfMidOK   bool
	EtfBestBid int64
	EtfBestAsk int64
	HasBestBid bool
	HasBestAsk bool

	Imbalance  float64
	Volatility float64

	Position      int64
	PositionLimit int64

	// Headroom already accounts for open exposure; a policy sizing beyond it
	// would be denied by the risk manager, so it shrinks toward it instead.
	BidHeadroom int64
	AskHeadroom int64
}

type Action int

const (
	ActionNone Action = iota
	ActionKeep
	ActionPlace
	ActionReplace
	ActionAmend
	ActionWithdraw
)

func (a Action) String() string {
	switch a {
	case ActionKeep:
		return "KEEP"
	case ActionPlace:
		return "PLACE"
	case ActionReplace:
		return "REPLACE"
	case ActionAmend:
		return "AMEND"
	case ActionWithdraw:
		return "WITHDRAW"
	}
	return "NONE"
}

// SideQuote is the policy's view of a resting order on one side.
type SideQuote struct {
	Price  int64
	Volume int64
}

type SideDecision struct {
	Action Action
	Price  int64
	Volume int64
}

type Decision struct {
	Bid SideDecision
	Ask SideDecision
}

// QuotePolicy computes the desired two-sided quote and the cancel/replace
// action against the currently resting one. Both variants implement it and
// the session picks one at configuration time.
type QuotePolicy interface {
	Quotes(snap Snapshot, liveBid, liveAsk *SideQuote) Decision
}
