package market

import "github.com/ethereum/go-ethereum/common"

// SettlementAuthority decides who may fix a market's outcome
type SettlementAuthority interface {
	CanSettle(caller common.Address) bool
	Owner() common.Address
}

// OwnerAuthority lets a single account settle
type OwnerAuthority struct {
	owner common.Address
}

// NewOwnerAuthority creates an authority for owner
func NewOwnerAuthority(owner common.Address) OwnerAuthority {
	return OwnerAuthority{owner: owner}
}

func (a OwnerAuthority) CanSettle(caller common.Address) bool {
	return a.owner != (common.Address{}) && caller == a.owner
}

func (a OwnerAuthority) Owner() common.Address {
	return a.owner
}
