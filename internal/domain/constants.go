package domain

// Identity is an opaque party identifier (account address, user id).
type Identity string

// AssetRef names the asset a record is denominated in.
type AssetRef string

// RecordKind distinguishes the three contract variants.
type RecordKind string

const (
	KindEscrow  RecordKind = "escrow"
	KindOrder   RecordKind = "order"
	KindAuction RecordKind = "auction"
)

// State is a lifecycle state of a custody or auction record.
type State string

// Custody states. Orders add Shipped and Delivered between Pending and Released.
const (
	StatePending   State = "PENDING"
	StateShipped   State = "SHIPPED"
	StateDelivered State = "DELIVERED"
	StateDisputed  State = "DISPUTED"
	StateReleased  State = "RELEASED"
	StateRefunded  State = "REFUNDED"
)

// Auction states.
const (
	StateActive    State = "ACTIVE"
	StateEnded     State = "ENDED"
	StateSettled   State = "SETTLED"
	StateCancelled State = "CANCELLED"
)

// Action is a requested lifecycle move.
type Action string

const (
	ActionShip    Action = "ship"
	ActionDeliver Action = "deliver"
	ActionDispute Action = "dispute"
	ActionRelease Action = "release"
	ActionRefund  Action = "refund"
	ActionEnd     Action = "end"
	ActionBuyNow  Action = "buy_now"
	ActionCancel  Action = "cancel"
	ActionSettle  Action = "settle"
)

// Role is a bit set of the capacities a caller holds relative to a record.
type Role uint8

const (
	RoleNone   Role = 0
	RoleBuyer  Role = 1 << iota
	RoleSeller
	RoleArbitrator
	RoleBidder
	RoleSystem
)

// Has reports whether r includes any bit of other.
func (r Role) Has(other Role) bool {
	return r&other != 0
}

// Payout reasons.
const (
	PayoutSeller       = "seller_payout"
	PayoutFee          = "fee_payout"
	PayoutBuyerRefund  = "buyer_refund"
	PayoutLeaderRefund = "leader_refund"
)

// Payout statuses.
const (
	PayoutStatusPending      = "PENDING"
	PayoutStatusProcessing   = "PROCESSING"
	PayoutStatusSent         = "SENT"
	PayoutStatusManualReview = "MANUAL_REVIEW"
)

// Settlement outcomes.
const (
	OutcomeReleased      = "released"
	OutcomeRefunded      = "refunded"
	OutcomeSold          = "sold"
	OutcomeReserveNotMet = "reserve_not_met"
	OutcomeNoBids        = "no_bids"
)

// MaxFeeBps is 100% in basis points.
const MaxFeeBps uint32 = 10_000
