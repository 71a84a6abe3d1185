package cryptox

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestDeriveMasterKey_Deterministic(t *testing.T) {
	password := []byte("secret-password")
	salt := []byte("fixed-salt")

	key1 := DeriveMasterKey(password, salt)
	key2 := DeriveMasterKey(password, salt)

	if !bytes.Equal(key1, key2) {
		t.Errorf("expected same result for same inputs, got different")
	}
	if len(key1) != keyLen {
		t.Errorf("expected %d byte key, got %d", keyLen, len(key1))
	}

	// pinned so a parameter change does not go unnoticed
	expectedHex := "34f7a1c64df63ab1ad5b5ee06e64db5713b35f81839823304db63e8e5e6a6a39"
	if hex.EncodeToString(key1) != expectedHex {
		t.Errorf("expected %s, got %s", expectedHex, hex.EncodeToString(key1))
	}
}

func TestDeriveMasterKey_DifferentInputs(t *testing.T) {
	password := []byte("secret-password")

	key1 := DeriveMasterKey(password, []byte("salt-1"))
	key2 := DeriveMasterKey(password, []byte("salt-2"))
	if bytes.Equal(key1, key2) {
		t.Errorf("expected different results for different salts, got same")
	}

	key3 := DeriveMasterKey([]byte("other-password"), []byte("salt-1"))
	if bytes.Equal(key1, key3) {
		t.Errorf("expected different results for different passwords, got same")
	}
}

func TestMakeVerifier(t *testing.T) {
	key := []byte("master-key")
	want := sha256.Sum256(key)

	if got := MakeVerifier(key); !bytes.Equal(got, want[:]) {
		t.Errorf("verifier mismatch: %x", got)
	}
	if bytes.Equal(MakeVerifier(key), key) {
		t.Errorf("verifier must not equal the key")
	}
}
