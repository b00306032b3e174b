package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func jwksDocument(kid string, pub *rsa.PublicKey) []byte {
	doc := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": kid,
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	}
	body, _ := json.Marshal(doc)
	return body
}

func TestJWKSClientGet(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	var fetches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		_, _ = w.Write(jwksDocument("kid-1", &key.PublicKey))
	}))
	defer srv.Close()

	client := NewJWKSClient(srv.URL, time.Minute)
	pub, err := client.Get("kid-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if pub.N.Cmp(key.PublicKey.N) != 0 {
		t.Fatal("returned key does not match published key")
	}

	if _, err := client.Get("kid-1"); err != nil {
		t.Fatalf("cached Get failed: %v", err)
	}
	if fetches != 1 {
		t.Fatalf("fetches = %d, want 1 within the TTL", fetches)
	}

	if _, err := client.Get("kid-missing"); err != ErrKeyNotFound {
		t.Fatalf("unknown kid error = %v, want ErrKeyNotFound", err)
	}
}

func TestJWKSClientServesStaleKeysOnFailure(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	var down bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(jwksDocument("kid-2", &key.PublicKey))
	}))
	defer srv.Close()

	client := NewJWKSClient(srv.URL, time.Nanosecond)
	if _, err := client.Get("kid-2"); err != nil {
		t.Fatalf("initial Get failed: %v", err)
	}

	down = true
	time.Sleep(time.Millisecond)
	if _, err := client.Get("kid-2"); err != nil {
		t.Fatalf("stale Get failed while issuer down: %v", err)
	}
}
