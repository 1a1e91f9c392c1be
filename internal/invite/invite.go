// Package invite builds and verifies self-contained admission tokens. A token
// carries everything needed to check it (payload fields, signature and the
// inviter's public address), so validation needs no secret material, no
// network access and no central authority.
package invite

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/schemes"

	"glen/internal/models"
)

// Scheme is the signature scheme tokens are signed with.
var Scheme = schemes.ByName("Dilithium2")

// MaxEncodedLen caps an encoded token before any parsing happens.
const MaxEncodedLen = 10240

// Token is an immutable admission token. Validity is exclusively
// "not expired + valid signature"; there is no revocation list.
type Token struct {
	CommunityName   string      `json:"community_name"`
	GroupRef        string      `json:"group_ref"`
	InviterIdentity string      `json:"inviter_identity"`
	InviterAddress  string      `json:"inviter_address"`
	Role            models.Role `json:"role"`
	Expiry          int64       `json:"expiry"` // unix micro
	Signature       []byte      `json:"signature"`
}

// canonicalPayload is the exact byte layout that gets signed. Field order is
// fixed so both sides rebuild identical bytes; a keyed JSON object leaves no
// delimiter ambiguity between field values.
type canonicalPayload struct {
	CommunityName   string `json:"communityName"`
	Expiry          int64  `json:"expiry"`
	InviterAddress  string `json:"inviterAddress"`
	InviterIdentity string `json:"inviterIdentity"`
	GroupReference  string `json:"groupReference"`
	Role            string `json:"role"`
}

func canonicalBytes(tok *Token) ([]byte, error) {
	return json.Marshal(&canonicalPayload{
		CommunityName:   tok.CommunityName,
		Expiry:          tok.Expiry,
		InviterAddress:  tok.InviterAddress,
		InviterIdentity: tok.InviterIdentity,
		GroupReference:  tok.GroupRef,
		Role:            string(tok.Role),
	})
}

// Address derives the public address for a signing key: the base64url raw
// public key bytes, so a token verifies against the address alone.
func Address(pub sign.PublicKey) (string, error) {
	raw, err := pub.MarshalBinary()
	if err != nil {
		return "", ErrBadKey.WithDetails(err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Sign signs msg with the given private key.
func Sign(priv sign.PrivateKey, msg []byte) []byte {
	return Scheme.Sign(priv, msg, nil)
}

// Verify checks sig over msg against a public address.
func Verify(msg, sig []byte, address string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(address)
	if err != nil {
		return false
	}
	pub, err := Scheme.UnmarshalBinaryPublicKey(raw)
	if err != nil {
		return false
	}
	return Scheme.Verify(pub, msg, sig, nil)
}

// CreateInvite mints a token for the given community, signed by priv. Only
// member and moderator roles can be granted through an invite.
func CreateInvite(priv sign.PrivateKey, communityName, groupRef, inviterIdentity string, role models.Role, ttl time.Duration) (*Token, error) {
	if role != models.RoleMember && role != models.RoleModerator {
		return nil, ErrBadRole.WithDetails(string(role))
	}
	if ttl <= 0 {
		return nil, ErrBadExpiry
	}
	addr, err := Address(priv.Public().(sign.PublicKey))
	if err != nil {
		return nil, err
	}
	tok := &Token{
		CommunityName:   communityName,
		GroupRef:        groupRef,
		InviterIdentity: inviterIdentity,
		InviterAddress:  addr,
		Role:            role,
		Expiry:          time.Now().Add(ttl).UnixMicro(),
	}
	payload, err := canonicalBytes(tok)
	if err != nil {
		return nil, ErrSigningFailed.WithDetails(err.Error())
	}
	tok.Signature = Scheme.Sign(priv, payload, nil)
	return tok, nil
}

// Validate reports why a token is not acceptable: expired, or the signature
// does not match the canonical payload rebuilt from the token's own fields.
// A nil result means the token is good.
func Validate(tok *Token) error {
	if time.Now().UnixMicro() > tok.Expiry {
		return ErrInviteExpired
	}
	payload, err := canonicalBytes(tok)
	if err != nil {
		return ErrBadSignature.WithDetails(err.Error())
	}
	if !Verify(payload, tok.Signature, tok.InviterAddress) {
		return ErrBadSignature
	}
	return nil
}

// VerifyInvite is the boolean form of Validate. A forged or stale token is an
// expected occurrence, not a fault.
func VerifyInvite(tok *Token) bool {
	return Validate(tok) == nil
}

// EncodeInvite wraps the token JSON in base64url for transport.
func EncodeInvite(tok *Token) (string, error) {
	b, err := json.Marshal(tok)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeInvite parses an encoded token. The size ceiling is enforced before
// any base64 or JSON work to block oversized-payload parsing attacks.
func DecodeInvite(encoded string) (*Token, error) {
	if len(encoded) > MaxEncodedLen {
		return nil, ErrTokenTooLarge
	}
	b, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrBadEncoding.WithDetails(err.Error())
	}
	var tok Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, ErrBadEncoding.WithDetails(err.Error())
	}
	return &tok, nil
}
