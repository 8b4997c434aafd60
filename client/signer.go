package client

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cubeathon "github.com/NikhilRaikwar/Cubeathon"
	"github.com/companyzero/bisonrelay/zkidentity"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Signer holds a player's signing key. The uid every coordinator knows the
// player by is derived from the pubkey, so possession of this key is
// possession of the identity.
type Signer struct {
	priv *secp256k1.PrivateKey
	uid  zkidentity.ShortID
}

// NewSigner wraps an existing private key.
func NewSigner(priv *secp256k1.PrivateKey) *Signer {
	return &Signer{priv: priv, uid: cubeathon.PlayerID(priv.PubKey())}
}

// LoadSigner reads the hex-encoded key file, generating and persisting a
// fresh key on first use.
func LoadSigner(path string) (*Signer, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return createSigner(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	b, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("key file %s is not hex: %w", path, err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("key file %s holds %d bytes, want 32", path, len(b))
	}
	return NewSigner(secp256k1.PrivKeyFromBytes(b)), nil
}

func createSigner(path string) (*Signer, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(priv.Serialize())+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}
	return NewSigner(priv), nil
}

// UID is the player id bound to this key.
func (s *Signer) UID() zkidentity.ShortID { return s.uid }

// PubKeyHex is the compressed pubkey, as carried in start requests.
func (s *Signer) PubKeyHex() string {
	return hex.EncodeToString(s.priv.PubKey().SerializeCompressed())
}

// Sign produces the 64-byte consent signature over a digest.
func (s *Signer) Sign(digest [32]byte) ([]byte, error) {
	return cubeathon.SignDigest(s.priv, digest)
}

// ConsentToStart signs the exact session shape an opponent proposes. The
// returned pubkey and signature travel out of band to whoever posts the
// start request.
func (s *Signer) ConsentToStart(sessionID uint32, mode string, playerA, playerB zkidentity.ShortID, pointsA, pointsB int64) (pubHex, sigHex string, err error) {
	digest := cubeathon.StartDigest(sessionID, mode, playerA, playerB, pointsA, pointsB)
	sig, err := s.Sign(digest)
	if err != nil {
		return "", "", err
	}
	return s.PubKeyHex(), hex.EncodeToString(sig), nil
}
