// Package vault is a minimal deposit/withdraw application used as a
// protected target behind the gateway. It keeps per-account balances and
// understands a small ABI-style call surface; anything with ledger-like
// entry points can sit behind the gateway the same way.
package vault

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cordonlabs/cordon/internal/detector"
)

var (
	ErrUnknownTarget     = errors.New("no application mounted at target")
	ErrUnknownFunction   = errors.New("unknown function selector")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidCall       = errors.New("malformed call payload")
)

// Application handles calls the gateway forwards to one target address.
type Application interface {
	Call(ctx context.Context, caller common.Address, payload []byte, value *big.Int) ([]byte, error)
}

var (
	selDeposit     = detector.Selector("deposit()")
	selWithdraw    = detector.Selector("withdraw(uint256)")
	selWithdrawAll = detector.Selector("withdrawAll()")
	selBalanceOf   = detector.Selector("balanceOf(address)")
)

// Vault is a per-account balance ledger. Deposits credit the caller with the
// attached value; withdrawals debit it. A payload shorter than a selector is
// treated as a plain value transfer and credited like a deposit.
type Vault struct {
	mu       sync.RWMutex
	balances map[common.Address]*big.Int
	total    *big.Int
}

// NewVault creates an empty vault.
func NewVault() *Vault {
	return &Vault{
		balances: make(map[common.Address]*big.Int),
		total:    new(big.Int),
	}
}

var _ Application = (*Vault)(nil)

// Call dispatches on the payload's function selector and returns the
// caller's resulting balance as a 32-byte big-endian word.
func (v *Vault) Call(_ context.Context, caller common.Address, payload []byte, value *big.Int) ([]byte, error) {
	if len(payload) < 4 {
		return v.deposit(caller, value)
	}

	var sel [4]byte
	copy(sel[:], payload[:4])

	switch sel {
	case selDeposit:
		return v.deposit(caller, value)
	case selWithdraw:
		if len(payload) < 36 {
			return nil, ErrInvalidCall
		}
		return v.withdraw(caller, new(big.Int).SetBytes(payload[4:36]))
	case selWithdrawAll:
		return v.withdrawAll(caller)
	case selBalanceOf:
		if len(payload) < 36 {
			return nil, ErrInvalidCall
		}
		return v.balanceWord(common.BytesToAddress(payload[4:36])), nil
	default:
		return nil, ErrUnknownFunction
	}
}

// Balance returns an account's current balance.
func (v *Vault) Balance(account common.Address) *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return new(big.Int).Set(v.balance(account))
}

// Total returns the sum of all balances.
func (v *Vault) Total() *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return new(big.Int).Set(v.total)
}

func (v *Vault) deposit(caller common.Address, value *big.Int) ([]byte, error) {
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() < 0 {
		return nil, ErrInvalidCall
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	bal := new(big.Int).Add(v.balance(caller), value)
	v.balances[caller] = bal
	v.total.Add(v.total, value)
	return word(bal), nil
}

func (v *Vault) withdraw(caller common.Address, amount *big.Int) ([]byte, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidCall
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	bal := v.balance(caller)
	if bal.Cmp(amount) < 0 {
		return nil, ErrInsufficientFunds
	}
	bal = new(big.Int).Sub(bal, amount)
	v.balances[caller] = bal
	v.total.Sub(v.total, amount)
	return word(bal), nil
}

func (v *Vault) withdrawAll(caller common.Address) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	bal := v.balance(caller)
	v.balances[caller] = new(big.Int)
	v.total.Sub(v.total, bal)
	return word(new(big.Int)), nil
}

// balance returns the live balance entry; callers hold the lock.
func (v *Vault) balance(account common.Address) *big.Int {
	if bal, ok := v.balances[account]; ok {
		return bal
	}
	return new(big.Int)
}

func (v *Vault) balanceWord(account common.Address) []byte {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return word(v.balance(account))
}

func word(n *big.Int) []byte {
	out := make([]byte, 32)
	n.FillBytes(out)
	return out
}

// Router maps target addresses to mounted applications. It satisfies both
// the gateway's forwarder and the freeze ledger's invoker, so allowed calls
// and execute resolutions take the same path to the target.
type Router struct {
	mu   sync.RWMutex
	apps map[common.Address]Application
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{apps: make(map[common.Address]Application)}
}

// Mount attaches an application at the target address, replacing any
// previous one.
func (r *Router) Mount(target common.Address, app Application) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apps[target] = app
}

// Invoke delivers a call to the application mounted at target.
func (r *Router) Invoke(ctx context.Context, caller, target common.Address, payload []byte, value *big.Int) ([]byte, error) {
	r.mu.RLock()
	app, ok := r.apps[target]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownTarget
	}
	return app.Call(ctx, caller, payload, value)
}
