package handlers

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"

	"github.com/digos-health/himsog/libs/auth"
)

// TokenSigner issues and checks access tokens. Rotation methods are
// no-ops unless the implementation manages multiple keys.
type TokenSigner interface {
	Sign(claims auth.Claims) (string, error)
	Verify(token string) (*auth.Claims, error)
	JWK() map[string]any
	JWKS() []map[string]any
	CanRotate() bool
	SetActiveKid(kid string) error
	RotateKey() string
}

// noRotation supplies the rotation methods for single-key signers.
type noRotation struct{}

func (noRotation) CanRotate() bool             { return false }
func (noRotation) SetActiveKid(_ string) error { return errors.New("rotation not supported") }
func (noRotation) RotateKey() string           { return "" }

type hs256Signer struct {
	noRotation
	secret string
}

func NewHS256Signer(secret string) TokenSigner {
	return &hs256Signer{secret: secret}
}

func (s *hs256Signer) Sign(claims auth.Claims) (string, error) {
	return auth.SignHS256(claims, s.secret)
}

func (s *hs256Signer) Verify(token string) (*auth.Claims, error) {
	return auth.ParseAndVerifyHS256(token, s.secret)
}

func (s *hs256Signer) JWK() map[string]any    { return nil }
func (s *hs256Signer) JWKS() []map[string]any { return nil }

// rsaKeyPair bundles one RSA key with its kid and published JWK.
type rsaKeyPair struct {
	kid     string
	private *rsa.PrivateKey
	jwk     map[string]any
}

func newRSAKeyPair(key *rsa.PrivateKey, kid string) *rsaKeyPair {
	if kid == "" {
		kid = fingerprint(&key.PublicKey)
	}
	pub := &key.PublicKey
	return &rsaKeyPair{
		kid:     kid,
		private: key,
		jwk: map[string]any{
			"kty": "RSA",
			"kid": kid,
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		},
	}
}

func (k *rsaKeyPair) sign(claims auth.Claims) (string, error) {
	headerJSON, err := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT", "kid": k.kid})
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	unsigned := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(payloadJSON)
	digest := sha256.Sum256([]byte(unsigned))
	sig, err := rsa.SignPKCS1v15(rand.Reader, k.private, crypto.SHA256, digest[:])
	if err != nil {
		return "", err
	}
	return unsigned + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

func (k *rsaKeyPair) verify(token string) (*auth.Claims, error) {
	return auth.VerifyRS256(token, &k.private.PublicKey)
}

// fingerprint derives a stable kid from the public modulus.
func fingerprint(pub *rsa.PublicKey) string {
	sum := sha256.Sum256(pub.N.Bytes())
	return base64.RawURLEncoding.EncodeToString(sum[:8])
}

type rs256Signer struct {
	noRotation
	key *rsaKeyPair
}

func NewRS256Signer(pemBytes []byte, kid string) (TokenSigner, error) {
	key, err := parseRSAPrivateKey(pemBytes)
	if err != nil {
		return nil, err
	}
	return &rs256Signer{key: newRSAKeyPair(key, kid)}, nil
}

func (s *rs256Signer) Sign(claims auth.Claims) (string, error)   { return s.key.sign(claims) }
func (s *rs256Signer) Verify(token string) (*auth.Claims, error) { return s.key.verify(token) }
func (s *rs256Signer) JWK() map[string]any                       { return s.key.jwk }
func (s *rs256Signer) JWKS() []map[string]any                    { return []map[string]any{s.key.jwk} }

// ParseRS256KeySet reads every PEM block in the blob and returns the
// keys indexed by derived kid.
func ParseRS256KeySet(pemBlobs string) (map[string]*rsa.PrivateKey, error) {
	keys := map[string]*rsa.PrivateKey{}
	rest := []byte(pemBlobs)
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		key, err := parsePKCSBlock(block)
		if err != nil {
			return nil, err
		}
		keys[fingerprint(&key.PublicKey)] = key
	}
	if len(keys) == 0 {
		return nil, errors.New("no valid rsa keys found")
	}
	return keys, nil
}

// RotatingSigner signs with one active key while publishing every
// known key in the JWKS so older tokens keep verifying.
type RotatingSigner struct {
	activeKid string
	keys      map[string]*rsaKeyPair
	rotateKey string
}

func NewRotatingRS256Signer(keys map[string]*rsa.PrivateKey, activeKid string) (TokenSigner, error) {
	if len(keys) == 0 {
		return nil, errors.New("no keys provided")
	}
	s := &RotatingSigner{activeKid: activeKid, keys: map[string]*rsaKeyPair{}}
	for kid, key := range keys {
		if kid == "" || key == nil {
			continue
		}
		s.keys[kid] = newRSAKeyPair(key, kid)
	}
	if s.activeKid == "" {
		for kid := range s.keys {
			s.activeKid = kid
			break
		}
	}
	if s.keys[s.activeKid] == nil {
		return nil, errors.New("active kid not found")
	}
	return s, nil
}

func (s *RotatingSigner) Sign(claims auth.Claims) (string, error) {
	return s.keys[s.activeKid].sign(claims)
}

func (s *RotatingSigner) Verify(token string) (*auth.Claims, error) {
	header, err := auth.ParseHeader(token)
	if err != nil {
		return nil, err
	}
	key := s.keys[header.Kid]
	if header.Kid == "" || key == nil {
		return nil, auth.ErrInvalidToken
	}
	return key.verify(token)
}

func (s *RotatingSigner) JWK() map[string]any {
	return s.keys[s.activeKid].jwk
}

func (s *RotatingSigner) JWKS() []map[string]any {
	out := make([]map[string]any, 0, len(s.keys))
	for _, key := range s.keys {
		out = append(out, key.jwk)
	}
	return out
}

func (s *RotatingSigner) CanRotate() bool { return true }

func (s *RotatingSigner) SetActiveKid(kid string) error {
	if s.keys[kid] == nil {
		return errors.New("unknown kid")
	}
	s.activeKid = kid
	return nil
}

func (s *RotatingSigner) RotateKey() string { return s.rotateKey }

// SetRotateKey sets the shared secret required by the rotation admin
// endpoints.
func (s *RotatingSigner) SetRotateKey(key string) { s.rotateKey = key }

func parseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	return parsePKCSBlock(block)
}

func parsePKCSBlock(block *pem.Block) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
	}
	return nil, errors.New("unsupported private key")
}
