package prover

import (
	"fmt"

	"github.com/vocdoni/circom2gnark/parser"
)

// Verify checks a snarkjs groth16 proof against a snarkjs verification
// key, both as raw JSON, with the given decimal public signals.
func Verify(proofJSON, vkeyJSON []byte, publicSignals []string) (bool, error) {
	proof, err := parser.UnmarshalCircomProofJSON(proofJSON)
	if err != nil {
		return false, fmt.Errorf("parse proof: %w", err)
	}
	vkey, err := parser.UnmarshalCircomVerificationKeyJSON(vkeyJSON)
	if err != nil {
		return false, fmt.Errorf("parse verification key: %w", err)
	}
	gnarkProof, err := parser.ConvertCircomToGnark(proof, vkey, publicSignals)
	if err != nil {
		return false, fmt.Errorf("convert proof: %w", err)
	}
	return parser.VerifyProof(gnarkProof)
}

// VerifyWithSignalsJSON is Verify for callers holding the public
// signals as the snarkjs JSON array.
func VerifyWithSignalsJSON(proofJSON, vkeyJSON, signalsJSON []byte) (bool, error) {
	signals, err := parser.UnmarshalCircomPublicSignalsJSON(signalsJSON)
	if err != nil {
		return false, fmt.Errorf("parse public signals: %w", err)
	}
	return Verify(proofJSON, vkeyJSON, signals)
}
