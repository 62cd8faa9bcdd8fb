package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MatchMethod records which evidence produced a match
type MatchMethod string

const (
	MethodExactGTIN     MatchMethod = "exact_gtin"
	MethodExactUPC      MatchMethod = "exact_upc"
	MethodExactEAN      MatchMethod = "exact_ean"
	MethodExactASIN     MatchMethod = "exact_asin"
	MethodBrandTitle    MatchMethod = "brand_title"
	MethodFuzzyTitle    MatchMethod = "fuzzy_title"
	MethodCategoryPrice MatchMethod = "category_price"
	MethodManual        MatchMethod = "manual"
)

// IsExact reports whether the method is an authoritative identifier match
func (m MatchMethod) IsExact() bool {
	return strings.HasPrefix(string(m), "exact_")
}

// MatchStatus is the lifecycle state of a persisted match
type MatchStatus string

const (
	StatusPending     MatchStatus = "pending"
	StatusConfirmed   MatchStatus = "confirmed"
	StatusRejected    MatchStatus = "rejected"
	StatusExpired     MatchStatus = "expired"
	StatusUnavailable MatchStatus = "unavailable"
)

// Terminal reports whether no further automatic transition leaves this status
func (s MatchStatus) Terminal() bool {
	return s == StatusRejected || s == StatusExpired || s == StatusUnavailable
}

// MatchEvent is an input to the match state machine
type MatchEvent string

const (
	EventConfirm     MatchEvent = "confirm"
	EventReject      MatchEvent = "reject"
	EventRevoke      MatchEvent = "revoke"
	EventUnavailable MatchEvent = "external_unavailable"
	EventExpire      MatchEvent = "ttl_elapsed"
)

// transitions lists the allowed (from, event) -> to edges
var transitions = map[MatchStatus]map[MatchEvent]MatchStatus{
	StatusPending: {
		EventConfirm:     StatusConfirmed,
		EventReject:      StatusRejected,
		EventUnavailable: StatusUnavailable,
		EventExpire:      StatusExpired,
	},
	StatusConfirmed: {
		EventConfirm:     StatusConfirmed,
		EventRevoke:      StatusRejected,
		EventUnavailable: StatusUnavailable,
	},
}

// NextStatus returns the status reached by applying event to from
func NextStatus(from MatchStatus, event MatchEvent) (MatchStatus, bool) {
	to, ok := transitions[from][event]
	return to, ok
}

// Tier is the operator-facing confidence bucket
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// Match is the persisted outcome of pairing a source product with a marketplace listing
type Match struct {
	ID                uuid.UUID   `json:"id"`
	SourceProductID   uuid.UUID   `json:"sourceProductId"`
	TargetMarketplace Platform    `json:"targetMarketplace"`
	ExternalID        string      `json:"externalId"`
	ExternalURL       string      `json:"externalUrl"`
	ConfidenceScore   int         `json:"confidenceScore"`
	MatchMethod       MatchMethod `json:"matchMethod"`
	MatchStatus       MatchStatus `json:"matchStatus"`
	Reason            string      `json:"reason"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
}

// Apply moves the match through event, enforcing the state machine and the reason requirement
func (m *Match) Apply(event MatchEvent, reason string) error {
	to, ok := NextStatus(m.MatchStatus, event)
	if !ok {
		return &TransitionError{MatchID: m.ID, From: m.MatchStatus, Event: event}
	}
	reason = strings.TrimSpace(reason)
	if (to == StatusRejected || to == StatusUnavailable) && reason == "" {
		return fmt.Errorf("%w: reason is required to move a match to %s", ErrInvalidRequest, to)
	}
	if reason != "" {
		m.Reason = reason
	}
	m.MatchStatus = to
	return nil
}

// ConfirmedMatch is the public shape of a confirmed match handed to link builders
type ConfirmedMatch struct {
	SourceProductID   uuid.UUID   `json:"source_product_id"`
	TargetMarketplace Platform    `json:"target_marketplace"`
	ExternalID        string      `json:"external_id"`
	ExternalURL       string      `json:"external_url"`
	ConfidenceScore   int         `json:"confidence_score"`
	MatchMethod       MatchMethod `json:"match_method"`
}

// Public strips a match down to the confirmed-match contract
func (m *Match) Public() ConfirmedMatch {
	return ConfirmedMatch{
		SourceProductID:   m.SourceProductID,
		TargetMarketplace: m.TargetMarketplace,
		ExternalID:        m.ExternalID,
		ExternalURL:       m.ExternalURL,
		ConfidenceScore:   m.ConfidenceScore,
		MatchMethod:       m.MatchMethod,
	}
}

// SubScores are the independent similarity signals between two products, each in [0,1]
type SubScores struct {
	Brand    float64 `json:"brand"`
	Title    float64 `json:"title"`
	Price    float64 `json:"price"`
	Category float64 `json:"category"`
}

// MatchCandidate is a scored (source, target) pairing proposed by the aggregator
type MatchCandidate struct {
	Source     *ProductRecord `json:"-"`
	Target     *ProductRecord `json:"target"`
	Scores     SubScores      `json:"scores"`
	Confidence int            `json:"confidence"`
	Tier       Tier           `json:"tier"`
	Method     MatchMethod    `json:"method"`
	// IdentifierType is set when the pairing came from an identifier match
	IdentifierType IdentifierType `json:"identifierType,omitempty"`
	Reason         string         `json:"reason"`
	// PriceGap is the relative price difference, or -1 when either price is missing
	PriceGap       float64 `json:"priceGap"`
	VariantOverlap int     `json:"variantOverlap"`
}

// DroppedCandidate records why a candidate never reached persistence
type DroppedCandidate struct {
	ExternalID string `json:"externalId"`
	Reason     string `json:"reason"`
}
