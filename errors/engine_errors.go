package errors

import (
	"errors"
	"fmt"
)

// Kind partitions every failure the engine can report. The caller's
// reaction depends only on the kind: structural and consensus failures are
// terminal for the offending block or transaction, contextual failures are
// retried once the missing dependency resolves, and storage failures stop
// the engine.
type Kind int

const (
	KindStructural Kind = iota + 1
	KindConsensus
	KindContextual
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindStructural:
		return "structural"
	case KindConsensus:
		return "consensus"
	case KindContextual:
		return "contextual"
	case KindStorage:
		return "storage"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Code identifies the specific rule or condition that failed.
type Code string

const (
	// Structural codes
	CodeBadEncoding     Code = "bad_encoding"
	CodeOversized       Code = "oversized"
	CodeEmptyBlock      Code = "empty_block"
	CodeBadMerkleRoot   Code = "bad_merkle_root"
	CodeDuplicateTx     Code = "duplicate_tx"
	CodeBadCoinbase     Code = "bad_coinbase"
	CodeBadSolutionSize Code = "bad_solution_size"

	// Consensus codes
	CodeBadProofOfWork     Code = "bad_proof_of_work"
	CodeBadDifficulty      Code = "bad_difficulty"
	CodeTimeTooOld         Code = "time_too_old"
	CodeTimeTooFar         Code = "time_too_far"
	CodeBadSignature       Code = "bad_signature"
	CodeBadProof           Code = "bad_proof"
	CodeDoubleSpend        Code = "double_spend"
	CodeDuplicateNullifier Code = "duplicate_nullifier"
	CodeBadAnchor          Code = "bad_anchor"
	CodeBadCommitmentRoot  Code = "bad_commitment_root"
	CodeValueImbalance     Code = "value_imbalance"
	CodePoolExhausted      Code = "pool_exhausted"
	CodeImmatureCoinbase   Code = "immature_coinbase"
	CodeRuleSetViolation   Code = "rule_set_violation"
	CodeCheckpointMismatch Code = "checkpoint_mismatch"
	CodeKnownInvalid       Code = "known_invalid"
	CodeFinalizedFork      Code = "finalized_fork"

	// Contextual codes
	CodeOrphanBlock   Code = "orphan_block"
	CodeUnknownOutput Code = "unknown_output"

	// Storage codes
	CodeStorageFailed Code = "storage_failed"
	CodeEngineHalted  Code = "engine_halted"
)

// EngineError is the typed result surfaced across the engine boundary.
type EngineError struct {
	Kind    Kind   `json:"kind"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Kind, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s/%s: %s", e.Kind, e.Code, e.Message)
}

func (e *EngineError) Unwrap() error { return e.Err }

func newError(kind Kind, code Code, format string, args ...interface{}) *EngineError {
	return &EngineError{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Structural(code Code, format string, args ...interface{}) *EngineError {
	return newError(KindStructural, code, format, args...)
}

func Consensus(code Code, format string, args ...interface{}) *EngineError {
	return newError(KindConsensus, code, format, args...)
}

func Contextual(code Code, format string, args ...interface{}) *EngineError {
	return newError(KindContextual, code, format, args...)
}

// Storage wraps an underlying I/O failure. Storage errors are fatal to
// finalization and must reach the process boundary.
func Storage(err error, format string, args ...interface{}) *EngineError {
	e := newError(KindStorage, CodeStorageFailed, format, args...)
	e.Err = err
	return e
}

func kindOf(err error) Kind {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return 0
}

func IsStructural(err error) bool { return kindOf(err) == KindStructural }
func IsConsensus(err error) bool  { return kindOf(err) == KindConsensus }
func IsContextual(err error) bool { return kindOf(err) == KindContextual }
func IsStorage(err error) bool    { return kindOf(err) == KindStorage }

// CodeOf returns the engine error code, or "" for foreign errors.
func CodeOf(err error) Code {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}
