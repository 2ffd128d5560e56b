package forest

import (
	"github.com/veraxlabs/verax/block"
	"github.com/veraxlabs/verax/transaction"
	"github.com/veraxlabs/verax/types"
)

// View is the read-only verification context for a block extending a
// particular chain: header ancestry for difficulty and timestamp rules,
// and output resolution for signature and balance rules. A View stays
// consistent even if the forest moves on, because the nodes beneath it are
// immutable.
type View struct {
	forest *Forest
	parent *Chain // nil when the block extends the finalized root
}

// Height returns the height of the chain tip this view sits on; a block
// verified against the view lands at Height()+1.
func (v *View) Height() uint64 {
	if v.parent != nil {
		return v.parent.height
	}
	height, _ := v.forest.Root()
	return height
}

// TipHash returns the hash of the chain tip this view sits on.
func (v *View) TipHash() types.Hash {
	if v.parent != nil {
		return v.parent.hash
	}
	_, hash := v.forest.Root()
	return hash
}

// HeadersBack returns up to count ancestor headers ending at the view's
// tip, oldest first. Near genesis fewer headers exist; the caller handles
// the short window.
func (v *View) HeadersBack(count int) ([]*block.Header, error) {
	if count <= 0 {
		return nil, nil
	}
	headers := make([]*block.Header, 0, count)

	node := v.parent
	for node != nil && len(headers) < count {
		headers = append(headers, &node.blk.Header)
		node = node.parent.Load()
	}

	// Continue into finalized history, starting at the root itself.
	next, _ := v.forest.Root()
	for len(headers) < count {
		blk, err := v.forest.finalized.BlockByHeight(next)
		if err != nil {
			return nil, err
		}
		if blk == nil {
			break
		}
		headers = append(headers, &blk.Header)
		if next == 0 {
			break
		}
		next--
	}

	// Reverse into oldest-first order.
	for i, j := 0, len(headers)-1; i < j; i, j = i+1, j-1 {
		headers[i], headers[j] = headers[j], headers[i]
	}
	return headers, nil
}

// LookupOutput resolves an outpoint in this view.
func (v *View) LookupOutput(op types.Outpoint) (*transaction.UnspentOutput, bool, error) {
	if v.parent != nil {
		return v.parent.LookupOutput(op)
	}
	return v.forest.finalized.LookupOutput(op)
}
