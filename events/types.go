package events

import (
	"time"

	"github.com/veraxlabs/verax/types"
)

// EventType is an enum-like string type for engine events
type EventType string

const (
	EventBlockCommitted      EventType = "BlockCommitted"
	EventBlockRejected       EventType = "BlockRejected"
	EventBlockFinalized      EventType = "BlockFinalized"
	EventChainReorged        EventType = "ChainReorged"
	EventTransactionAccepted EventType = "TransactionAccepted"
)

// EngineEvent represents any observable state change in the engine
type EngineEvent interface {
	Type() EventType
	Timestamp() time.Time
	Subject() types.Hash
}

// BlockCommitted fires when a block joins a candidate chain. The block is
// valid but not final; it may still lose to a heavier fork.
type BlockCommitted struct {
	hash      types.Hash
	height    uint64
	txCount   int
	bestChain bool
	timestamp time.Time
}

func NewBlockCommitted(hash types.Hash, height uint64, txCount int, bestChain bool) *BlockCommitted {
	return &BlockCommitted{
		hash:      hash,
		height:    height,
		txCount:   txCount,
		bestChain: bestChain,
		timestamp: time.Now(),
	}
}

func (e *BlockCommitted) Type() EventType      { return EventBlockCommitted }
func (e *BlockCommitted) Timestamp() time.Time { return e.timestamp }
func (e *BlockCommitted) Subject() types.Hash  { return e.hash }
func (e *BlockCommitted) Height() uint64       { return e.height }
func (e *BlockCommitted) TxCount() int         { return e.txCount }

// OnBestChain reports whether the block extended the best chain at the
// moment it committed.
func (e *BlockCommitted) OnBestChain() bool { return e.bestChain }

// BlockRejected fires when verification fails permanently.
type BlockRejected struct {
	hash      types.Hash
	code      string
	reason    string
	timestamp time.Time
}

func NewBlockRejected(hash types.Hash, code, reason string) *BlockRejected {
	return &BlockRejected{
		hash:      hash,
		code:      code,
		reason:    reason,
		timestamp: time.Now(),
	}
}

func (e *BlockRejected) Type() EventType      { return EventBlockRejected }
func (e *BlockRejected) Timestamp() time.Time { return e.timestamp }
func (e *BlockRejected) Subject() types.Hash  { return e.hash }
func (e *BlockRejected) Code() string         { return e.code }
func (e *BlockRejected) Reason() string       { return e.reason }

// BlockFinalized fires when a block crosses the finality depth and moves
// into the finalized store. It can never reorg afterwards.
type BlockFinalized struct {
	hash      types.Hash
	height    uint64
	timestamp time.Time
}

func NewBlockFinalized(hash types.Hash, height uint64) *BlockFinalized {
	return &BlockFinalized{
		hash:      hash,
		height:    height,
		timestamp: time.Now(),
	}
}

func (e *BlockFinalized) Type() EventType      { return EventBlockFinalized }
func (e *BlockFinalized) Timestamp() time.Time { return e.timestamp }
func (e *BlockFinalized) Subject() types.Hash  { return e.hash }
func (e *BlockFinalized) Height() uint64       { return e.height }

// ChainReorged fires when best-chain selection moves the tip to a
// different fork.
type ChainReorged struct {
	oldTip    types.Hash
	newTip    types.Hash
	newHeight uint64
	timestamp time.Time
}

func NewChainReorged(oldTip, newTip types.Hash, newHeight uint64) *ChainReorged {
	return &ChainReorged{
		oldTip:    oldTip,
		newTip:    newTip,
		newHeight: newHeight,
		timestamp: time.Now(),
	}
}

func (e *ChainReorged) Type() EventType      { return EventChainReorged }
func (e *ChainReorged) Timestamp() time.Time { return e.timestamp }
func (e *ChainReorged) Subject() types.Hash  { return e.newTip }
func (e *ChainReorged) OldTip() types.Hash   { return e.oldTip }
func (e *ChainReorged) NewHeight() uint64    { return e.newHeight }

// TransactionAccepted fires when a transaction passes mempool admission.
type TransactionAccepted struct {
	txHash    types.Hash
	timestamp time.Time
}

func NewTransactionAccepted(txHash types.Hash) *TransactionAccepted {
	return &TransactionAccepted{
		txHash:    txHash,
		timestamp: time.Now(),
	}
}

func (e *TransactionAccepted) Type() EventType      { return EventTransactionAccepted }
func (e *TransactionAccepted) Timestamp() time.Time { return e.timestamp }
func (e *TransactionAccepted) Subject() types.Hash  { return e.txHash }
