package verify

import (
	"sort"

	"github.com/holiman/uint256"

	"github.com/veraxlabs/verax/block"
	"github.com/veraxlabs/verax/config"
)

// NextWorkRequired computes the compact difficulty target the next block
// must carry, from the trailing window of ancestor headers (oldest first).
// The target is the window's average target scaled by how far the window's
// actual duration drifted from the scheduled one, with the drift clamped
// so single outlier blocks cannot swing difficulty violently.
func NextWorkRequired(headers []*block.Header, params *config.Params) uint32 {
	n := params.AveragingWindow
	if len(headers) < n {
		// Not enough history to average; the chain starts at the floor.
		return params.PowLimitBits
	}
	window := headers[len(headers)-n:]

	powLimit, _ := block.CompactToTarget(params.PowLimitBits)

	// Average the window targets. Dividing each term keeps the sum inside
	// 256 bits even at the difficulty floor.
	avgTarget := new(uint256.Int)
	term := new(uint256.Int)
	for _, h := range window {
		target, ok := block.CompactToTarget(h.Bits)
		if !ok {
			target = powLimit
		}
		avgTarget.Add(avgTarget, term.Div(target, uint256.NewInt(uint64(n))))
	}

	expected := int64(n-1) * int64(params.TargetSpacing.Seconds())
	actual := window[len(window)-1].Timestamp - window[0].Timestamp

	// Clamp the measured timespan.
	minSpan := expected * int64(100-params.MaxAdjustUpPct) / 100
	maxSpan := expected * int64(100+params.MaxAdjustDownPct) / 100
	if actual < minSpan {
		actual = minSpan
	}
	if actual > maxSpan {
		actual = maxSpan
	}
	if expected <= 0 || actual <= 0 {
		return params.PowLimitBits
	}

	newTarget, overflow := new(uint256.Int).MulDivOverflow(avgTarget, uint256.NewInt(uint64(actual)), uint256.NewInt(uint64(expected)))
	if overflow || newTarget.Cmp(powLimit) > 0 {
		return params.PowLimitBits
	}
	return block.TargetToCompact(newTarget)
}

// MedianTimePast returns the median timestamp of the trailing
// params.MedianTimeSpan headers (oldest first on input). A block's
// timestamp must exceed this value. Returns 0 when no history exists.
func MedianTimePast(headers []*block.Header, span int) int64 {
	if len(headers) == 0 {
		return 0
	}
	if len(headers) > span {
		headers = headers[len(headers)-span:]
	}
	stamps := make([]int64, len(headers))
	for i, h := range headers {
		stamps[i] = h.Timestamp
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })
	return stamps[len(stamps)/2]
}
