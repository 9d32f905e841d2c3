package domain

// CustodyRecord holds funds for a buyer/seller pair (escrow and order variants).
// Amount is immutable after creation.
type CustodyRecord struct {
	ID          uint64     `json:"id"`
	Kind        RecordKind `json:"kind"`
	Buyer       Identity   `json:"buyer"`
	Seller      Identity   `json:"seller"`
	Asset       AssetRef   `json:"asset"`
	Amount      Amount     `json:"amount"`
	State       State      `json:"state"`
	Funded      bool       `json:"funded"`
	Settled     bool       `json:"settled"`
	CategoryID  uint32     `json:"category_id,omitempty"`
	ShippingRef string     `json:"shipping_ref,omitempty"`
	FundingRef  string     `json:"funding_ref,omitempty"`
	CreatedAt   int64      `json:"created_at"`
}

// RoleOf returns the capacities id holds on the record. The arbitrator is
// configured globally.
func (r *CustodyRecord) RoleOf(id, arbitrator Identity) Role {
	role := RoleNone
	if id == "" {
		return role
	}
	if id == r.Buyer {
		role |= RoleBuyer
	}
	if id == r.Seller {
		role |= RoleSeller
	}
	if arbitrator != "" && id == arbitrator {
		role |= RoleArbitrator
	}
	return role
}

// AuctionRecord is a single competitive sale. CurrentLeader is empty until the
// first accepted bid.
type AuctionRecord struct {
	ID            uint64   `json:"id"`
	Seller        Identity `json:"seller"`
	Asset         AssetRef `json:"asset"`
	StartingPrice Amount   `json:"starting_price"`
	ReservePrice  Amount   `json:"reserve_price"`
	BuyNowPrice   *Amount  `json:"buy_now_price,omitempty"`
	StartTime     int64    `json:"start_time"`
	EndTime       int64    `json:"end_time"`
	FeeBps        uint32   `json:"fee_bps"`
	State         State    `json:"state"`
	CurrentLeader Identity `json:"current_leader,omitempty"`
	CurrentAmount Amount   `json:"current_amount"`
}

func (a *AuctionRecord) HasLeader() bool {
	return a.CurrentLeader != ""
}

// OpenAt reports whether bids are accepted at unix time now.
func (a *AuctionRecord) OpenAt(now int64) bool {
	return a.State == StateActive && now >= a.StartTime && now < a.EndTime
}

// Bid is an append-only entry in an auction's history.
type Bid struct {
	Bidder    Identity `json:"bidder"`
	Amount    Amount   `json:"amount"`
	Timestamp int64    `json:"timestamp"`
}

// BidHistory is the ordered bid sequence of one auction.
type BidHistory struct {
	AuctionID uint64 `json:"auction_id"`
	Bids      []Bid  `json:"bids"`
}

// FeeConfig is the single versioned configuration record of an engine instance.
type FeeConfig struct {
	Admin        Identity `json:"admin"`
	Arbitrator   Identity `json:"arbitrator"`
	FeeCollector Identity `json:"fee_collector"`
	BaseFeeBps   uint32   `json:"base_fee_bps"`
	Version      uint64   `json:"version"`
	UpdatedAt    int64    `json:"updated_at"`
}

// CategoryFee overrides the base fee rate for records in a category.
type CategoryFee struct {
	CategoryID uint32 `json:"category_id"`
	RateBps    uint32 `json:"rate_bps"`
}

// FeeTotals is the process-wide fee accumulator. It is never reset.
type FeeTotals struct {
	TotalCollected Amount `json:"total_collected"`
}

// Payout is an outbound transfer owed by the engine, created in the same
// transaction as the state change that caused it.
type Payout struct {
	ID          uint64     `json:"id"`
	Reason      string     `json:"reason"`
	Recipient   Identity   `json:"recipient"`
	Asset       AssetRef   `json:"asset"`
	Amount      Amount     `json:"amount"`
	SourceKind  RecordKind `json:"source_kind"`
	SourceID    uint64     `json:"source_id"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	GatewayRef  string     `json:"gateway_ref,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   int64      `json:"created_at"`
	ClaimedAt   int64      `json:"claimed_at,omitempty"`
	CompletedAt int64      `json:"completed_at,omitempty"`
}

// PayoutQueue indexes payouts awaiting dispatch, those claimed by a worker and
// those parked for an operator.
type PayoutQueue struct {
	Pending      []uint64 `json:"pending"`
	Processing   []uint64 `json:"processing"`
	ManualReview []uint64 `json:"manual_review"`
}

// Distribution describes the funds moved by one settlement.
type Distribution struct {
	Kind         RecordKind `json:"kind"`
	RecordID     uint64     `json:"record_id"`
	Outcome      string     `json:"outcome"`
	Seller       Identity   `json:"seller,omitempty"`
	SellerAmount Amount     `json:"seller_amount"`
	FeeAmount    Amount     `json:"fee_amount"`
	Refundee     Identity   `json:"refundee,omitempty"`
	RefundAmount Amount     `json:"refund_amount"`
	PayoutIDs    []uint64   `json:"payout_ids,omitempty"`
}
