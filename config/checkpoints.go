package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jedisct1/go-minisign"

	"github.com/veraxlabs/verax/logx"
	"github.com/veraxlabs/verax/types"
)

// Checkpoint files are plain text, one "height:hash" pair per line,
// append-only. When a minisign public key is configured, a detached
// signature file must sit next to the checkpoint file and verify, so a
// tampered checkpoint set fails closed at startup.

// LoadCheckpointFile parses path and returns checkpoints in ascending
// height order. pubKey, when non-empty, is a minisign public key used to
// verify path+".minisig".
func LoadCheckpointFile(path, pubKey string) ([]Checkpoint, error) {
	if pubKey != "" {
		if err := verifyCheckpointSignature(path, pubKey); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint file: %w", err)
	}
	defer f.Close()

	var cps []Checkpoint
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("checkpoint file line %d: missing separator", lineNo)
		}
		height, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("checkpoint file line %d: %w", lineNo, err)
		}
		hash, err := types.HashFromHex(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("checkpoint file line %d: %w", lineNo, err)
		}
		cps = append(cps, Checkpoint{Height: height, Hash: hash})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read checkpoint file: %w", err)
	}

	if err := validateCheckpoints(cps); err != nil {
		return nil, err
	}
	logx.Info("CONFIG", fmt.Sprintf("Loaded %d checkpoints from %s", len(cps), path))
	return cps, nil
}

func verifyCheckpointSignature(path, pubKey string) error {
	key, err := minisign.NewPublicKey(pubKey)
	if err != nil {
		return fmt.Errorf("parse checkpoint signing key: %w", err)
	}
	sig, err := minisign.NewSignatureFromFile(path + ".minisig")
	if err != nil {
		return fmt.Errorf("read checkpoint signature: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read checkpoint file: %w", err)
	}
	if ok, err := key.Verify(data, sig); !ok {
		return fmt.Errorf("checkpoint file signature invalid: %v", err)
	}
	return nil
}
