package domain

import (
	"math/big"
	"time"
)

// EventRecord holds the core fields of a deployed event contract.
type EventRecord struct {
	Address     Address
	Name        string
	Description string
	Date        *big.Int
	Venue       string
	Organizer   Address
	TotalSold   *big.Int
	TicketNFT   Address
}

// StartsAt converts the on-chain unix timestamp.
func (e EventRecord) StartsAt() time.Time {
	if e.Date == nil {
		return time.Time{}
	}
	return time.Unix(e.Date.Int64(), 0).UTC()
}

// TierRecord is one ticket tier as observed on-chain.
type TierRecord struct {
	ID             uint64
	Name           string
	Price          *big.Int
	Available      *big.Int
	Sold           *big.Int
	MaxPerPurchase *big.Int
	Description    string
	Active         bool
}

// Remaining is available minus sold. It is not clamped; chain state is reflected as is.
func (t TierRecord) Remaining() *big.Int {
	return new(big.Int).Sub(orZero(t.Available), orZero(t.Sold))
}

// TierStats are the derived figures for one tier.
type TierStats struct {
	Remaining    *big.Int
	SelloutRatio float64
	Revenue      *big.Int
}

// Stats are derived purely from fetched values.
type Stats struct {
	Available    *big.Int
	Sold         *big.Int
	Remaining    *big.Int
	SelloutRatio float64
	Revenue      *big.Int
	PerTier      []TierStats
}

// DomainSnapshot is a read-only aggregate of an event and its tiers.
type DomainSnapshot struct {
	Event     EventRecord
	Tiers     []TierRecord
	Stats     Stats
	FetchedAt time.Time
}

// Tier returns the tier with the given id.
func (s *DomainSnapshot) Tier(id uint64) (TierRecord, bool) {
	if s == nil || id >= uint64(len(s.Tiers)) {
		return TierRecord{}, false
	}
	return s.Tiers[id], true
}

// TicketMetadata describes a minted ticket NFT.
type TicketMetadata struct {
	TokenID       *big.Int
	TierID        *big.Int
	OriginalOwner Address
	CurrentOwner  Address
	MintTimestamp *big.Int
	BurnTimestamp *big.Int
	BurnedBy      Address
	IsUsed        bool
	EventAddress  Address
}

// BurnRecord is one check-in recorded by the event contract.
type BurnRecord struct {
	TokenID   *big.Int
	Attendee  Address
	BurnedBy  Address
	Timestamp *big.Int
	TierID    *big.Int
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
