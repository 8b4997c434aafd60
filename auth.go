package cubeathon

import (
	"encoding/binary"
	"fmt"
	"hash"

	"github.com/companyzero/bisonrelay/zkidentity"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/crypto/blake256"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
)

// Consent digests are EC-Schnorr-DCRv0 message hashes with domain separation
// tags, so a signature over one operation can never be replayed as another.
const (
	tagStart    = "Cubeathon/Start/v1"
	tagStage    = "Cubeathon/Stage/v1"
	tagScore    = "Cubeathon/Score/v1"
	tagFinalize = "Cubeathon/Finalize/v1"
)

// StartDigest binds a player's consent to the full shape of a new session.
// Both participants sign the same digest.
func StartDigest(sessionID uint32, mode string, playerA, playerB zkidentity.ShortID, pointsA, pointsB int64) [32]byte {
	h := blake256.New()
	h.Write([]byte(tagStart))
	writeUint32(h, sessionID)
	h.Write([]byte(mode))
	h.Write([]byte{'|'})
	h.Write(playerA[:])
	h.Write(playerB[:])
	writeUint64(h, uint64(pointsA))
	writeUint64(h, uint64(pointsB))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// StageDigest binds a sprint stage submission, including the commitment the
// proof was produced for.
func StageDigest(sessionID uint32, player zkidentity.ShortID, stage uint32, timeMs uint64, commitment chainhash.Hash) [32]byte {
	h := blake256.New()
	h.Write([]byte(tagStage))
	writeUint32(h, sessionID)
	h.Write(player[:])
	writeUint32(h, stage)
	writeUint64(h, timeMs)
	h.Write(commitment[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ScoreDigest binds an endurance score submission.
func ScoreDigest(sessionID uint32, player zkidentity.ShortID, timeMs uint64, commitment chainhash.Hash) [32]byte {
	h := blake256.New()
	h.Write([]byte(tagScore))
	writeUint32(h, sessionID)
	h.Write(player[:])
	writeUint64(h, timeMs)
	h.Write(commitment[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// FinalizeDigest binds a participant's request to settle an endurance session.
func FinalizeDigest(sessionID uint32, player zkidentity.ShortID) [32]byte {
	h := blake256.New()
	h.Write([]byte(tagFinalize))
	writeUint32(h, sessionID)
	h.Write(player[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SignDigest produces a 64-byte EC-Schnorr-DCRv0 signature over digest.
func SignDigest(priv *secp256k1.PrivateKey, digest [32]byte) ([]byte, error) {
	sig, err := schnorr.Sign(priv, digest[:])
	if err != nil {
		return nil, fmt.Errorf("schnorr sign: %w", err)
	}
	return sig.Serialize(), nil
}

// VerifyDigest checks a serialized signature against a 33-byte compressed
// pubkey. A failed check is an error so callers can wrap it with context.
func VerifyDigest(pub33 []byte, digest [32]byte, sig64 []byte) error {
	pub, err := secp256k1.ParsePubKey(pub33)
	if err != nil {
		return fmt.Errorf("parse pubkey: %w", err)
	}
	sig, err := schnorr.ParseSignature(sig64)
	if err != nil {
		return fmt.Errorf("parse signature: %w", err)
	}
	if !sig.Verify(digest[:], pub) {
		return fmt.Errorf("signature does not verify")
	}
	return nil
}

func writeUint32(h hash.Hash, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	h.Write(b[:])
}

func writeUint64(h hash.Hash, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	h.Write(b[:])
}
