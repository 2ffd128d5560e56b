package verify

import (
	"github.com/veraxlabs/verax/block"
	"github.com/veraxlabs/verax/config"
	"github.com/veraxlabs/verax/errors"
)

// CheckpointVerifier validates blocks at or below the last configured
// checkpoint. History under a checkpoint cannot reorg, so signature, proof
// and balance checks are skipped there; the hash chain plus the trusted
// (height, hash) pins carry the same guarantee at a fraction of the cost.
// Structure, proof of work and timestamps are still enforced so a corrupt
// peer cannot feed garbage between pins.
type CheckpointVerifier struct {
	params *config.Params
}

func NewCheckpointVerifier(params *config.Params) *CheckpointVerifier {
	return &CheckpointVerifier{params: params}
}

// Covered reports whether a block at height falls under checkpoint
// verification. Heights above the last checkpoint always take the full
// ladder.
func (c *CheckpointVerifier) Covered(height uint64) bool {
	return len(c.params.Checkpoints) > 0 && height <= c.params.LastCheckpointHeight()
}

// Verify checks a block in checkpoint range. At an exact checkpoint height
// the block hash must match the pin; between pins the structural and
// proof-of-work rules alone decide.
func (c *CheckpointVerifier) Verify(blk *block.Block, view ChainView) error {
	if err := CheckBlockStructure(blk); err != nil {
		return err
	}

	if blk.Header.ParentHash != view.TipHash() {
		return errors.Contextual(errors.CodeOrphanBlock,
			"block parent %s does not match view tip %s", blk.Header.ParentHash.Short(), view.TipHash().Short())
	}
	height := view.Height() + 1

	span := c.params.AveragingWindow
	if c.params.MedianTimeSpan > span {
		span = c.params.MedianTimeSpan
	}
	headers, err := view.HeadersBack(span)
	if err != nil {
		return err
	}

	if want := NextWorkRequired(headers, c.params); blk.Header.Bits != want {
		return errors.Consensus(errors.CodeBadDifficulty,
			"header bits %08x, required %08x at height %d", blk.Header.Bits, want, height)
	}
	target, ok := block.CompactToTarget(blk.Header.Bits)
	if !ok {
		return errors.Consensus(errors.CodeBadDifficulty, "header bits %08x do not encode a target", blk.Header.Bits)
	}
	if !block.HashMeetsTarget(blk.Hash(), target) {
		return errors.Consensus(errors.CodeBadProofOfWork, "block hash %s above target", blk.Hash().Short())
	}

	if len(headers) > 0 {
		if mtp := MedianTimePast(headers, c.params.MedianTimeSpan); blk.Header.Timestamp <= mtp {
			return errors.Consensus(errors.CodeTimeTooOld,
				"timestamp %d not after median-time-past %d", blk.Header.Timestamp, mtp)
		}
	}

	if pinned, ok := c.params.CheckpointAt(height); ok {
		if hash := blk.Hash(); hash != pinned {
			return errors.Consensus(errors.CodeCheckpointMismatch,
				"block %s at height %d does not match checkpoint %s", hash.Short(), height, pinned.Short())
		}
	}
	return nil
}
