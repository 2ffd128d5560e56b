package transaction

// UnspentOutput is a transparent output together with the provenance the
// verifier needs: the height it was created at and whether it came from a
// coinbase (coinbase outputs must mature before they can be spent).
type UnspentOutput struct {
	Out      TxOut  `json:"out"`
	Height   uint64 `json:"height"`
	Coinbase bool   `json:"coinbase"`
}
