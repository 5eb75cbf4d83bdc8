package broker

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/teranos/courier/errors"
)

// HeaderSignature carries the broker's JWT over each delivery.
const HeaderSignature = "Upstash-Signature"

// signatureIssuer is the iss claim the broker puts in every signature.
const signatureIssuer = "Upstash"

// DefaultLeeway tolerates clock skew between the broker and this host.
const DefaultLeeway = 5 * time.Second

// signatureClaims is the JWT payload of a delivery signature. Body holds
// base64url(sha256(request body)).
type signatureClaims struct {
	jwt.RegisteredClaims
	Body string `json:"body"`
}

// Verifier checks delivery signatures against a current and a next signing
// key, so deliveries keep flowing while the broker rotates keys.
type Verifier struct {
	mu      sync.RWMutex
	current []byte
	next    []byte
	url     string
	leeway  time.Duration
	now     func() time.Time
}

// NewVerifier creates a verifier. When url is non-empty the signature's
// subject must equal it.
func NewVerifier(currentKey, nextKey, url string) *Verifier {
	v := &Verifier{url: url, leeway: DefaultLeeway, now: time.Now}
	v.SetKeys(currentKey, nextKey)
	return v
}

// SetKeys replaces the signing keys. Safe to call while requests are being verified.
func (v *Verifier) SetKeys(currentKey, nextKey string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = []byte(currentKey)
	v.next = []byte(nextKey)
}

// Verify checks signature against body. Any failure wraps errors.ErrUnauthorized.
func (v *Verifier) Verify(signature string, body []byte) error {
	if signature == "" {
		return errors.Mark(errors.New("missing signature"), errors.ErrUnauthorized)
	}

	v.mu.RLock()
	keys := make([][]byte, 0, 2)
	if len(v.current) > 0 {
		keys = append(keys, v.current)
	}
	if len(v.next) > 0 {
		keys = append(keys, v.next)
	}
	v.mu.RUnlock()

	if len(keys) == 0 {
		return errors.Mark(errors.New("no signing keys configured"), errors.ErrUnauthorized)
	}

	var lastErr error
	for _, key := range keys {
		if lastErr = v.verifyWithKey(signature, body, key); lastErr == nil {
			return nil
		}
	}
	return errors.Mark(errors.Wrap(lastErr, "invalid signature"), errors.ErrUnauthorized)
}

func (v *Verifier) verifyWithKey(signature string, body, key []byte) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(signatureIssuer),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	}
	if v.url != "" {
		opts = append(opts, jwt.WithSubject(v.url))
	}

	var claims signatureClaims
	_, err := jwt.ParseWithClaims(signature, &claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}, opts...)
	if err != nil {
		return err
	}

	want := bodyHash(body)
	got := strings.TrimRight(claims.Body, "=")
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return errors.New("body hash mismatch")
	}
	return nil
}

// Sign produces a delivery signature the way the broker does. It is used
// by the CLI to hand-deliver jobs to a local server and by tests.
func Sign(key string, body []byte, url string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := signatureClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    signatureIssuer,
			Subject:   url,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Body: bodyHash(body),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return "", errors.Wrap(err, "sign delivery")
	}
	return signed, nil
}

func bodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
