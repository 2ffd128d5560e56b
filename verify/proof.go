package verify

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"

	"github.com/veraxlabs/verax/transaction"
	"github.com/veraxlabs/verax/types"
)

// ProofChecker validates shielded zero-knowledge proofs. One verifying key
// exists per pool; the proof systems differ between pools but share this
// surface.
type ProofChecker interface {
	// VerifySpend checks a spend proof against its public inputs: the
	// anchor, the nullifier and the transaction sighash.
	VerifySpend(pool types.Pool, spend *transaction.Spend, sigHash types.Hash) error

	// VerifyOutput checks an output proof against the note commitment.
	VerifyOutput(pool types.Pool, out *transaction.Output) error
}

const (
	proofCacheExpiry  = 30 * time.Minute
	proofCacheCleaner = 10 * time.Minute
)

type proofCacheEntry struct {
	err      error
	expireAt time.Time
}

// Groth16Checker verifies pool proofs with per-pool Groth16 verifying
// keys. Verification is expensive, so results are cached by content hash;
// the same proof relayed through competing blocks verifies once.
type Groth16Checker struct {
	keys  map[types.Pool]groth16.VerifyingKey
	cache sync.Map // string -> proofCacheEntry
}

// NewGroth16Checker loads base64-encoded verifying keys, one file per
// pool. Pools without a key file cannot be verified and any proof for them
// fails.
func NewGroth16Checker(keyPaths map[types.Pool]string) (*Groth16Checker, error) {
	checker := &Groth16Checker{keys: make(map[types.Pool]groth16.VerifyingKey)}
	for pool, path := range keyPaths {
		vkB64, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s verifying key: %w", pool, err)
		}
		vkBytes, err := base64.StdEncoding.DecodeString(string(vkB64))
		if err != nil {
			return nil, fmt.Errorf("decode %s verifying key: %w", pool, err)
		}
		vk := groth16.NewVerifyingKey(ecc.BN254)
		if _, err := vk.ReadFrom(bytes.NewReader(vkBytes)); err != nil {
			return nil, fmt.Errorf("parse %s verifying key: %w", pool, err)
		}
		checker.keys[pool] = vk
	}

	go checker.cleaner()
	return checker, nil
}

func (c *Groth16Checker) cleaner() {
	for {
		time.Sleep(proofCacheCleaner)
		now := time.Now()
		c.cache.Range(func(key, value interface{}) bool {
			entry := value.(proofCacheEntry)
			if now.After(entry.expireAt) {
				c.cache.Delete(key)
			}
			return true
		})
	}
}

func proofCacheKey(pool types.Pool, proof []byte, publics ...[]byte) string {
	h := sha256.New()
	h.Write([]byte{byte(pool)})
	h.Write(proof)
	for _, p := range publics {
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Groth16Checker) VerifySpend(pool types.Pool, spend *transaction.Spend, sigHash types.Hash) error {
	key := proofCacheKey(pool, spend.Proof, spend.Anchor[:], spend.Nullifier[:], sigHash[:])
	return c.cached(key, func() error {
		return c.verifyProof(pool, spend.Proof, spend.Anchor[:], spend.Nullifier[:], sigHash[:])
	})
}

func (c *Groth16Checker) VerifyOutput(pool types.Pool, out *transaction.Output) error {
	key := proofCacheKey(pool, out.Proof, out.Commitment[:])
	return c.cached(key, func() error {
		return c.verifyProof(pool, out.Proof, out.Commitment[:])
	})
}

func (c *Groth16Checker) cached(key string, verify func() error) error {
	if val, ok := c.cache.Load(key); ok {
		entry := val.(proofCacheEntry)
		if time.Now().Before(entry.expireAt) {
			return entry.err
		}
		c.cache.Delete(key)
	}

	err := verify()
	c.cache.Store(key, proofCacheEntry{err: err, expireAt: time.Now().Add(proofCacheExpiry)})
	return err
}

// verifyProof parses the proof blob (a Groth16 proof followed by its
// serialized public witness) and checks both the pairing equation and that
// the witness's leading public inputs are the expected values reduced into
// the scalar field.
func (c *Groth16Checker) verifyProof(pool types.Pool, blob []byte, expectedPublics ...[]byte) error {
	vk, ok := c.keys[pool]
	if !ok {
		return fmt.Errorf("no verifying key for pool %s", pool)
	}

	r := bytes.NewReader(blob)
	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(r); err != nil {
		return fmt.Errorf("parse proof: %w", err)
	}

	pw, err := witness.New(ecc.BN254.ScalarField())
	if err != nil {
		return fmt.Errorf("create witness: %w", err)
	}
	if _, err := pw.ReadFrom(r); err != nil {
		return fmt.Errorf("parse public witness: %w", err)
	}

	pubVector := fmt.Sprintf("%v", pw.Vector())
	pubTrimmed := strings.TrimSpace(strings.Trim(pubVector, "[]"))
	var pubEntries []string
	if pubTrimmed != "" {
		pubEntries = strings.Split(pubTrimmed, ",")
		for i := range pubEntries {
			pubEntries[i] = strings.TrimSpace(pubEntries[i])
		}
	}

	if len(pubEntries) < len(expectedPublics) {
		return fmt.Errorf("public input length %d, want at least %d", len(pubEntries), len(expectedPublics))
	}
	for i, expected := range expectedPublics {
		if pubEntries[i] != bytesToScalar(expected).String() {
			return fmt.Errorf("public input %d does not match", i)
		}
	}

	if err := groth16.Verify(proof, vk, pw); err != nil {
		return fmt.Errorf("proof verification failed: %w", err)
	}
	return nil
}

func bytesToScalar(b []byte) *big.Int {
	scalarField := ecc.BN254.ScalarField()
	value := new(big.Int).SetBytes(b)
	return value.Mod(value, scalarField)
}

// VerifyingKeyPaths scans dir for per-pool verifying key files named
// <pool>.vk and returns the map NewGroth16Checker consumes. Pools without
// a key file are simply absent.
func VerifyingKeyPaths(dir string) map[types.Pool]string {
	paths := make(map[types.Pool]string)
	for _, pool := range types.Pools {
		p := filepath.Join(dir, pool.String()+".vk")
		if _, err := os.Stat(p); err == nil {
			paths[pool] = p
		}
	}
	return paths
}

// SkipProofs accepts every well-formed proof without checking it. Only for
// networks that have no trusted setup: the test network and offline replay
// tooling. Never valid on mainnet.
type SkipProofs struct{}

func (SkipProofs) VerifySpend(pool types.Pool, spend *transaction.Spend, sigHash types.Hash) error {
	if len(spend.Proof) == 0 {
		return fmt.Errorf("empty spend proof")
	}
	return nil
}

func (SkipProofs) VerifyOutput(pool types.Pool, out *transaction.Output) error {
	if len(out.Proof) == 0 {
		return fmt.Errorf("empty output proof")
	}
	return nil
}

var _ ProofChecker = (*Groth16Checker)(nil)
var _ ProofChecker = SkipProofs{}
