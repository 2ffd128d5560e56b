package mempool

import (
	"fmt"
	"sync"

	"github.com/veraxlabs/verax/block"
	"github.com/veraxlabs/verax/logx"
	"github.com/veraxlabs/verax/transaction"
	"github.com/veraxlabs/verax/types"
)

// Mempool is a bounded, thread-safe queue of verified transactions waiting
// for inclusion. Admission verification happens in the engine before Add;
// the mempool's own job is FIFO ordering, dedup and conflict exclusion:
// at most one queued transaction may claim any given outpoint or
// nullifier.
type Mempool struct {
	mu     sync.RWMutex
	maxTxs int

	order []types.Hash
	txs   map[types.Hash]*transaction.Transaction

	claimedOutpoints  map[types.Outpoint]types.Hash
	claimedNullifiers map[types.Pool]map[types.Hash]types.Hash
}

func NewMempool(maxTxs int) *Mempool {
	return &Mempool{
		maxTxs:            maxTxs,
		txs:               make(map[types.Hash]*transaction.Transaction),
		claimedOutpoints:  make(map[types.Outpoint]types.Hash),
		claimedNullifiers: make(map[types.Pool]map[types.Hash]types.Hash),
	}
}

// Add queues a transaction. It fails when the pool is full, the
// transaction is already queued, or another queued transaction claims one
// of its outpoints or nullifiers.
func (m *Mempool) Add(tx *transaction.Transaction) error {
	hash := tx.Hash()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.txs[hash]; dup {
		return fmt.Errorf("transaction %s already queued", hash.Short())
	}
	if len(m.txs) >= m.maxTxs {
		return fmt.Errorf("mempool full (%d transactions)", len(m.txs))
	}

	for _, in := range tx.Inputs {
		if other, claimed := m.claimedOutpoints[in.PrevOut]; claimed {
			return fmt.Errorf("outpoint %s already claimed by %s", in.PrevOut, other.Short())
		}
	}
	for pool, nfs := range tx.Nullifiers() {
		for _, nf := range nfs {
			if set, ok := m.claimedNullifiers[pool]; ok {
				if other, claimed := set[nf]; claimed {
					return fmt.Errorf("%s nullifier %s already claimed by %s", pool, nf.Short(), other.Short())
				}
			}
		}
	}

	m.txs[hash] = tx
	m.order = append(m.order, hash)
	for _, in := range tx.Inputs {
		m.claimedOutpoints[in.PrevOut] = hash
	}
	for pool, nfs := range tx.Nullifiers() {
		set, ok := m.claimedNullifiers[pool]
		if !ok {
			set = make(map[types.Hash]types.Hash)
			m.claimedNullifiers[pool] = set
		}
		for _, nf := range nfs {
			set[nf] = hash
		}
	}
	return nil
}

// Has reports whether the transaction is queued.
func (m *Mempool) Has(hash types.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.txs[hash]
	return ok
}

// Len returns the number of queued transactions.
func (m *Mempool) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.txs)
}

// GetBatch returns up to max transactions in arrival order without
// removing them.
func (m *Mempool) GetBatch(max int) []*transaction.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.order) == 0 {
		return nil
	}
	if max > len(m.order) {
		max = len(m.order)
	}
	batch := make([]*transaction.Transaction, 0, max)
	for _, hash := range m.order[:max] {
		batch = append(batch, m.txs[hash])
	}
	return batch
}

// RemoveCommitted evicts every queued transaction included in blk, plus
// any queued transaction that conflicts with it: one spending an outpoint
// or revealing a nullifier the block consumed can never confirm on this
// chain.
func (m *Mempool) RemoveCommitted(blk *block.Block) {
	m.mu.Lock()
	defer m.mu.Unlock()

	evict := make(map[types.Hash]struct{})
	for _, tx := range blk.Transactions {
		hash := tx.Hash()
		if _, ok := m.txs[hash]; ok {
			evict[hash] = struct{}{}
		}
		for _, in := range tx.Inputs {
			if owner, claimed := m.claimedOutpoints[in.PrevOut]; claimed {
				evict[owner] = struct{}{}
			}
		}
		for pool, nfs := range tx.Nullifiers() {
			set, ok := m.claimedNullifiers[pool]
			if !ok {
				continue
			}
			for _, nf := range nfs {
				if owner, claimed := set[nf]; claimed {
					evict[owner] = struct{}{}
				}
			}
		}
	}

	if len(evict) > 0 {
		m.removeLocked(evict)
		logx.Debug("MEMPOOL", fmt.Sprintf("Evicted %d transaction(s) after block %s", len(evict), blk.Hash().Short()))
	}
}

// Retain keeps only the transactions keep approves, in order. The engine
// calls this after a reorg: transactions valid against the old tip may
// reference outputs the new chain never created.
func (m *Mempool) Retain(keep func(*transaction.Transaction) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	evict := make(map[types.Hash]struct{})
	for hash, tx := range m.txs {
		if !keep(tx) {
			evict[hash] = struct{}{}
		}
	}
	if len(evict) > 0 {
		m.removeLocked(evict)
	}
	return len(evict)
}

func (m *Mempool) removeLocked(evict map[types.Hash]struct{}) {
	kept := m.order[:0]
	for _, hash := range m.order {
		if _, gone := evict[hash]; !gone {
			kept = append(kept, hash)
			continue
		}
		tx := m.txs[hash]
		delete(m.txs, hash)
		for _, in := range tx.Inputs {
			if m.claimedOutpoints[in.PrevOut] == hash {
				delete(m.claimedOutpoints, in.PrevOut)
			}
		}
		for pool, nfs := range tx.Nullifiers() {
			set, ok := m.claimedNullifiers[pool]
			if !ok {
				continue
			}
			for _, nf := range nfs {
				if set[nf] == hash {
					delete(set, nf)
				}
			}
		}
	}
	m.order = kept
}
