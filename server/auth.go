package server

import (
	"errors"
	"fmt"

	cubeathon "github.com/NikhilRaikwar/Cubeathon"
	"github.com/NikhilRaikwar/Cubeathon/api"
	"github.com/NikhilRaikwar/Cubeathon/cubegame"
	"github.com/companyzero/bisonrelay/zkidentity"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// errUnauthorized maps to 401. Like the original contracts, authorization
// runs before any domain precondition: a caller who cannot prove control of
// the player key never reaches the registry.
var errUnauthorized = errors.New("unauthorized")

// checkIdentity confirms a compressed pubkey derives the claimed uid, which
// pins every uid in a session to exactly one signing key.
func checkIdentity(uid zkidentity.ShortID, pub33 []byte) error {
	pub, err := secp256k1.ParsePubKey(pub33)
	if err != nil {
		return fmt.Errorf("%w: parse pubkey: %v", errUnauthorized, err)
	}
	if cubeathon.PlayerID(pub) != uid {
		return fmt.Errorf("%w: pubkey does not derive uid %s", errUnauthorized, uid)
	}
	return nil
}

// verifyStartConsent checks both players signed the exact session shape
// being started and returns their parsed pubkeys for the session record.
func (s *Server) verifyStartConsent(p cubegame.StartParams, req api.StartSessionRequest) (pubA, pubB []byte, err error) {
	pubA, err = parseHexField("pubkey_a", req.PubKeyA)
	if err != nil {
		return nil, nil, err
	}
	pubB, err = parseHexField("pubkey_b", req.PubKeyB)
	if err != nil {
		return nil, nil, err
	}
	sigA, err := parseHexField("sig_a", req.SigA)
	if err != nil {
		return nil, nil, err
	}
	sigB, err := parseHexField("sig_b", req.SigB)
	if err != nil {
		return nil, nil, err
	}

	if err := checkIdentity(p.PlayerA, pubA); err != nil {
		return nil, nil, err
	}
	if err := checkIdentity(p.PlayerB, pubB); err != nil {
		return nil, nil, err
	}

	digest := cubeathon.StartDigest(p.SessionID, string(p.Mode), p.PlayerA, p.PlayerB, p.PointsA, p.PointsB)
	if err := cubeathon.VerifyDigest(pubA, digest, sigA); err != nil {
		return nil, nil, fmt.Errorf("%w: player_a consent: %v", errUnauthorized, err)
	}
	if err := cubeathon.VerifyDigest(pubB, digest, sigB); err != nil {
		return nil, nil, fmt.Errorf("%w: player_b consent: %v", errUnauthorized, err)
	}
	return pubA, pubB, nil
}

// verifyParticipantConsent checks a submission digest against the key the
// player bound at session start.
func (s *Server) verifyParticipantConsent(sessionID uint32, player zkidentity.ShortID, digest [32]byte, sigHex string) error {
	snap, err := s.registry.GetSession(sessionID)
	if err != nil {
		return err
	}
	pub, err := sessionPubkey(snap, player)
	if err != nil {
		return err
	}
	sig, err := parseHexField("sig", sigHex)
	if err != nil {
		return err
	}
	if err := cubeathon.VerifyDigest(pub, digest, sig); err != nil {
		return fmt.Errorf("%w: consent signature: %v", errUnauthorized, err)
	}
	return nil
}

// sessionPubkey returns the consent key bound to a participant at start.
func sessionPubkey(snap cubegame.SessionSnapshot, player zkidentity.ShortID) ([]byte, error) {
	var pub []byte
	switch player.String() {
	case snap.PlayerA:
		pub = snap.PubKeyA
	case snap.PlayerB:
		pub = snap.PubKeyB
	default:
		return nil, cubegame.ErrNotParticipant
	}
	if len(pub) == 0 {
		return nil, fmt.Errorf("%w: no consent key on file for %s", errUnauthorized, player)
	}
	return pub, nil
}
