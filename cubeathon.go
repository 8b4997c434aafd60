// Package cubeathon holds the pieces of the proof-gated session protocol that
// are shared between the coordinator, its clients, and tests: the journal-hash
// commitment, player identity derivation, and the consent digests players sign.
package cubeathon

import (
	crand "crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/companyzero/bisonrelay/zkidentity"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/crypto/blake256"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// NonceSize is the size of the random nonce mixed into every journal hash.
const NonceSize = 8

// JournalHash computes the commitment the proof circuit binds a submission to:
//
//	SHA-256(session_id_be32 || player || stage_be32 || time_ms_be64 || nonce)
//
// Endurance submissions use stage 0. The coordinator never recomputes this
// value; it passes the hash through to the verifier opaquely, so clients and
// the circuit must agree on this exact layout.
func JournalHash(sessionID uint32, player zkidentity.ShortID, stage uint32, timeMs uint64, nonce [NonceSize]byte) chainhash.Hash {
	b := make([]byte, 0, 4+32+4+8+NonceSize)
	b = binary.BigEndian.AppendUint32(b, sessionID)
	b = append(b, player[:]...)
	b = binary.BigEndian.AppendUint32(b, stage)
	b = binary.BigEndian.AppendUint64(b, timeMs)
	b = append(b, nonce[:]...)
	return chainhash.Hash(sha256.Sum256(b))
}

// NewNonce returns a fresh random journal nonce.
func NewNonce() ([NonceSize]byte, error) {
	var n [NonceSize]byte
	if _, err := crand.Read(n[:]); err != nil {
		return n, fmt.Errorf("read nonce: %w", err)
	}
	return n, nil
}

// PlayerID derives a player's uid from their compressed secp256k1 pubkey.
// The coordinator rejects session starts where the claimed uid does not match
// this derivation, which pins every uid to a signing key.
func PlayerID(pub *secp256k1.PublicKey) zkidentity.ShortID {
	sum := blake256.Sum256(pub.SerializeCompressed())
	var id zkidentity.ShortID
	copy(id[:], sum[:])
	return id
}

// EncodeHash renders a hash as plain big-endian hex. chainhash.Hash.String
// byte-reverses for chain display; wire and storage formats here use the
// direct byte order, so round trips must go through these two helpers.
func EncodeHash(h chainhash.Hash) string {
	return hex.EncodeToString(h[:])
}

// DecodeHash parses the hex form produced by EncodeHash.
func DecodeHash(s string) (chainhash.Hash, error) {
	var h chainhash.Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("decode hash hex: %w", err)
	}
	if len(b) != chainhash.HashSize {
		return h, fmt.Errorf("hash must be %d bytes, got %d", chainhash.HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}
