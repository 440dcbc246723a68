// Package errs defines the error kinds from spec §7, each a distinct wrapped
// type so callers dispatch with errors.As rather than string matching —
// the teacher's own idiom (see errors.Is(err, core.ErrNonceTooLow) in
// miner/worker.go).
package errs

import "fmt"

// ConfigError is fatal at init: unsupported chain, confirmation exceeding
// the chain hard cap, missing mandatory addresses, invalid batch size, etc.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config error: %s", e.Reason) }

// UnsupportedChain is fatal per event: the order references a chain absent
// from the registry.
type UnsupportedChain struct {
	ChainID uint64
}

func (e *UnsupportedChain) Error() string {
	return fmt.Sprintf("unsupported chain %d", e.ChainID)
}

// OrderInvalid is non-fatal: no bucket covers the give token, the give-side
// order state isn't Created, or the order is already fulfilled on the take
// chain.
type OrderInvalid struct {
	Reason string
}

func (e *OrderInvalid) Error() string { return fmt.Sprintf("order invalid: %s", e.Reason) }

// TransientRpcError wraps any RPC failure during estimation, balance check,
// broadcast, or wait-for-fulfill; the pipeline routes it to the mempool.
type TransientRpcError struct {
	Op  string
	Err error
}

func (e *TransientRpcError) Error() string { return fmt.Sprintf("transient rpc error during %s: %v", e.Op, e.Err) }
func (e *TransientRpcError) Unwrap() error { return e.Err }

// UnprofitableOrder signals the evaluator rejected the order at the
// configured minimum margin.
type UnprofitableOrder struct {
	Reason string
}

func (e *UnprofitableOrder) Error() string { return fmt.Sprintf("unprofitable: %s", e.Reason) }

// GasBlowout signals the final gas estimate exceeded the pre-estimated cap.
type GasBlowout struct {
	CapGas   uint64
	ActualGas uint64
}

func (e *GasBlowout) Error() string {
	return fmt.Sprintf("gas blowout: estimate %d exceeds cap %d", e.ActualGas, e.CapGas)
}

// ClientError comes from the swap/fulfill client during pre-estimation.
type ClientError struct {
	Err error
}

func (e *ClientError) Error() string { return fmt.Sprintf("client error: %v", e.Err) }
func (e *ClientError) Unwrap() error  { return e.Err }

// FatalInternal marks a bug: e.g. the reserve token picked disagrees between
// components. Logged and dropped, never broadcast.
type FatalInternal struct {
	Reason string
}

func (e *FatalInternal) Error() string { return fmt.Sprintf("fatal internal error: %s", e.Reason) }
