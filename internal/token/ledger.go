package token

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrUnauthorized          = errors.New("caller is not the minter")
	ErrZeroAmount            = errors.New("amount must be greater than 0")
	ErrOverflow              = errors.New("amount overflows balance")
	ErrDuplicateRecipient    = errors.New("recipient listed more than once")
)

// Ledger is an in-process stablecoin with ERC-20 style balances and allowances
type Ledger struct {
	mu         sync.RWMutex
	address    common.Address
	minter     common.Address
	balances   map[common.Address]uint64
	allowances map[common.Address]map[common.Address]uint64
	supply     uint64
}

// NewLedger creates a ledger for the token at address; only minter may mint
func NewLedger(address, minter common.Address) *Ledger {
	return &Ledger{
		address:    address,
		minter:     minter,
		balances:   make(map[common.Address]uint64),
		allowances: make(map[common.Address]map[common.Address]uint64),
	}
}

// Address returns the token address
func (l *Ledger) Address() common.Address {
	return l.address
}

// BalanceOf returns the balance for an account
func (l *Ledger) BalanceOf(account common.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account]
}

// TotalSupply returns the amount minted so far
func (l *Ledger) TotalSupply() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply
}

// Allowance returns how much spender may move out of owner's balance
func (l *Ledger) Allowance(owner, spender common.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowances[owner][spender]
}

// Approve sets spender's allowance over owner's balance, replacing any previous value
func (l *Ledger) Approve(owner, spender common.Address, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.allowances[owner]; !ok {
		l.allowances[owner] = make(map[common.Address]uint64)
	}
	l.allowances[owner][spender] = amount
}

// Mint creates new tokens for to
func (l *Ledger) Mint(caller, to common.Address, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.minter {
		return ErrUnauthorized
	}
	if l.supply+amount < l.supply {
		return ErrOverflow
	}

	l.supply += amount
	l.balances[to] += amount
	return nil
}

// Transfer moves funds from one account to another
func (l *Ledger) Transfer(from, to common.Address, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.move(from, to, amount)
}

// TransferFrom moves funds from owner to recipient on behalf of spender,
// consuming spender's allowance
func (l *Ledger) TransferFrom(spender, owner, to common.Address, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	allowed := l.allowances[owner][spender]
	if allowed < amount {
		return ErrInsufficientAllowance
	}
	if err := l.move(owner, to, amount); err != nil {
		return err
	}

	l.allowances[owner][spender] = allowed - amount
	return nil
}

// Distribute sends amount to every recipient in one step; either all
// transfers happen or none do. Each recipient may appear once.
func (l *Ledger) Distribute(from common.Address, recipients []common.Address, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	if len(recipients) == 0 {
		return nil
	}

	total := amount * uint64(len(recipients))
	if total/uint64(len(recipients)) != amount {
		return ErrOverflow
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[from] < total {
		return ErrInsufficientBalance
	}
	seen := make(map[common.Address]struct{}, len(recipients))
	for _, to := range recipients {
		if _, dup := seen[to]; dup {
			return ErrDuplicateRecipient
		}
		seen[to] = struct{}{}
		if l.balances[to]+amount < l.balances[to] {
			return ErrOverflow
		}
	}

	for _, to := range recipients {
		l.balances[from] -= amount
		l.balances[to] += amount
	}
	return nil
}

// move must be called with the lock held
func (l *Ledger) move(from, to common.Address, amount uint64) error {
	if l.balances[from] < amount {
		return ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	if l.balances[to]+amount < l.balances[to] {
		return ErrOverflow
	}

	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

// Snapshot is a JSON-serializable view of one account
type Snapshot struct {
	Token   string `json:"token"`
	Account string `json:"account"`
	Balance uint64 `json:"balance"`
	Display string `json:"balance_usd"`
}

// AccountSnapshot returns the balance of account in display form
func (l *Ledger) AccountSnapshot(account common.Address) Snapshot {
	bal := l.BalanceOf(account)
	return Snapshot{
		Token:   l.address.Hex(),
		Account: account.Hex(),
		Balance: bal,
		Display: FormatUnits(bal),
	}
}
