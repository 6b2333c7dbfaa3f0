package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/crypto/pbkdf2"
)

// fakeScramServer is a minimal SCRAM-SHA-256 server responder used only to
// exercise ScramClient end-to-end without a live PostgreSQL backend.
type fakeScramServer struct {
	password string
	salt     []byte
	iters    int

	clientNonce string
	serverNonce string
	clientFirst string
	authMessage string
}

func newFakeScramServer(password string) *fakeScramServer {
	salt := make([]byte, 16)
	_, _ = rand.Read(salt)

	return &fakeScramServer{password: password, salt: salt, iters: 4096}
}

func (s *fakeScramServer) respondToClientFirst(t *testing.T, clientFirstMessage []byte) []byte {
	t.Helper()

	msg := string(clientFirstMessage)
	bare := msg[strings.Index(msg, "n="):]

	for _, part := range strings.Split(bare, ",") {
		if strings.HasPrefix(part, "r=") {
			s.clientNonce = part[2:]
		}
	}

	s.clientFirst = bare

	extra := make([]byte, 18)
	_, _ = rand.Read(extra)
	s.serverNonce = s.clientNonce + base64.StdEncoding.EncodeToString(extra)

	serverFirst := fmt.Sprintf("r=%s,s=%s,i=%d", s.serverNonce, base64.StdEncoding.EncodeToString(s.salt), s.iters)

	return []byte(serverFirst)
}

func (s *fakeScramServer) respondToClientFinal(t *testing.T, clientFinalMessage []byte) []byte {
	t.Helper()

	msg := string(clientFinalMessage)

	var proofB64, withoutProof string

	if idx := strings.LastIndex(msg, ",p="); idx >= 0 {
		withoutProof = msg[:idx]
		proofB64 = msg[idx+3:]
	}

	proof, err := base64.StdEncoding.DecodeString(proofB64)
	if err != nil {
		t.Fatalf("fake server: decoding client proof: %v", err)
	}

	saltedPassword := pbkdf2.Key([]byte(s.password), s.salt, s.iters, sha256.Size, sha256.New)
	clientKey := hmacSHA256(saltedPassword, []byte("Client Key"))
	storedKey := sha256Sum(clientKey)

	serverFirst := fmt.Sprintf("r=%s,s=%s,i=%d", s.serverNonce, base64.StdEncoding.EncodeToString(s.salt), s.iters)
	authMessage := s.clientFirst + "," + serverFirst + "," + withoutProof
	s.authMessage = authMessage

	clientSignature := hmacSHA256(storedKey, []byte(authMessage))
	expectedClientKey := xorBytes(proof, clientSignature)
	if sha256SumString(expectedClientKey) != sha256SumString(clientKey) {
		t.Fatalf("fake server: client proof verification failed")
	}

	serverKey := hmacSHA256(saltedPassword, []byte("Server Key"))
	serverSignature := hmacSHA256(serverKey, []byte(authMessage))

	return []byte("v=" + base64.StdEncoding.EncodeToString(serverSignature))
}

func sha256SumString(b []byte) string {
	sum := sha256.Sum256(b)
	return string(sum[:])
}
