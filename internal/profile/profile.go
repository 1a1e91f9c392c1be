// Package profile stores identity keys at rest: the Dilithium2 signing key
// and the libp2p host key, sealed with a password-derived key.
package profile

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/json"
	"os"

	"github.com/cloudflare/circl/sign"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"golang.org/x/crypto/argon2"
	chacha "golang.org/x/crypto/chacha20poly1305"

	"glen/internal/invite"
	"glen/internal/utils"
)

// Profile is the on-disk form. Private keys are encrypted with the password;
// the checksum uses separate argon2 parameters so it never equals the
// encryption key.
type Profile struct {
	Username         string `json:"username"`
	PasswordSalt     []byte `json:"password_salt"`
	PasswordChecksum []byte `json:"password_checksum"`
	SignPrivEnc      []byte `json:"sign_priv_enc"`   // encrypted w/ password
	Libp2pPrivEnc    []byte `json:"libp2p_priv_enc"` // encrypted w/ password
	Identity         string `json:"identity"`        // public signing address
	PeerID           string `json:"peer_id"`
}

// Keybag holds the unlocked keys for a session.
type Keybag struct {
	SignPriv   sign.PrivateKey
	Libp2pPriv crypto.PrivKey
	Identity   string
	PeerID     string
	Username   string
}

func GenerateProfile(username, pass string) (*Profile, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	passKey := argon2.IDKey([]byte(pass), salt, 1, 64*1024, 4, 32)
	unlocker := argon2.IDKey([]byte(pass), salt, 3, 8*1024, 2, 32)

	signPub, signPriv, err := invite.Scheme.GenerateKey()
	if err != nil {
		return nil, err
	}
	identity, err := invite.Address(signPub)
	if err != nil {
		return nil, err
	}

	libPriv, _, err := crypto.GenerateKeyPair(crypto.Ed25519, -1)
	if err != nil {
		return nil, err
	}
	pid, err := peer.IDFromPrivateKey(libPriv)
	if err != nil {
		return nil, err
	}

	aead, err := chacha.New(passKey)
	if err != nil {
		return nil, err
	}

	signBytes, err := signPriv.MarshalBinary()
	if err != nil {
		return nil, err
	}
	signEnc, err := seal(aead, signBytes)
	if err != nil {
		return nil, err
	}

	libBytes, err := crypto.MarshalPrivateKey(libPriv)
	if err != nil {
		return nil, err
	}
	libEnc, err := seal(aead, libBytes)
	if err != nil {
		return nil, err
	}

	prof := &Profile{
		Username:         username,
		PasswordSalt:     salt,
		PasswordChecksum: unlocker,
		SignPrivEnc:      signEnc,
		Libp2pPrivEnc:    libEnc,
		Identity:         identity,
		PeerID:           pid.String(),
	}

	profilePath, err := createProfilePath(username)
	if err != nil {
		return nil, err
	}
	file, err := os.Create(profilePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(prof); err != nil {
		return nil, err
	}
	return prof, nil
}

func LoadProfile(username, pass, path string) (*Keybag, error) {
	profilePath, err := getProfilePath(username, path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(profilePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var prof Profile
	if err := json.NewDecoder(file).Decode(&prof); err != nil {
		return nil, err
	}
	passKey := argon2.IDKey([]byte(pass), prof.PasswordSalt, 1, 64*1024, 4, 32)
	check := argon2.IDKey([]byte(pass), prof.PasswordSalt, 3, 8*1024, 2, 32)
	if !hmac.Equal(check, prof.PasswordChecksum) {
		return nil, utils.InvalidPassword
	}

	aead, err := chacha.New(passKey)
	if err != nil {
		return nil, err
	}

	signBytes, err := open(aead, prof.SignPrivEnc)
	if err != nil {
		return nil, err
	}
	libBytes, err := open(aead, prof.Libp2pPrivEnc)
	if err != nil {
		return nil, err
	}

	signPriv, err := invite.Scheme.UnmarshalBinaryPrivateKey(signBytes)
	if err != nil {
		return nil, err
	}
	libPriv, err := crypto.UnmarshalPrivateKey(libBytes)
	if err != nil {
		return nil, err
	}

	return &Keybag{
		SignPriv:   signPriv,
		Libp2pPriv: libPriv,
		Identity:   prof.Identity,
		PeerID:     prof.PeerID,
		Username:   prof.Username,
	}, nil
}
