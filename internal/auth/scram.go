package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// ScramMechanism is the only SASL mechanism this driver supports.
const ScramMechanism = "SCRAM-SHA-256"

// SupportsScram reports whether SCRAM-SHA-256 is among the mechanisms a
// backend's AuthenticationSASL message offered.
func SupportsScram(mechanisms []string) bool {
	for _, m := range mechanisms {
		if m == ScramMechanism {
			return true
		}
	}

	return false
}

// ScramClient drives one RFC 5802 SCRAM-SHA-256 exchange. Each step
// produces the bytes to send and validates the bytes received, so the
// caller's job is purely to move them across the wire via AuthenticationSASL
// / AuthenticationSASLContinue / AuthenticationSASLFinal and PasswordMessage
// frames.
type ScramClient struct {
	user     string
	password string

	clientNonce     string
	clientFirstBare string
	authMessage     string
	saltedPassword  []byte
}

// NewScramClient seeds a fresh exchange with a random 18-byte client nonce.
func NewScramClient(user, password string) (*ScramClient, error) {
	nonceBytes := make([]byte, 18)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, fmt.Errorf("scram: generating client nonce: %w", err)
	}

	return &ScramClient{
		user:        user,
		password:    password,
		clientNonce: base64.StdEncoding.EncodeToString(nonceBytes),
	}, nil
}

// clientFirstGS2Header is fixed: no channel binding, no SASL authzid.
const clientFirstGS2Header = "n,,"

// FirstMessage returns the client-first-message to send as the payload of
// the initial SASLInitialResponse ('p' PasswordMessage carrying the
// mechanism name and this message).
func (c *ScramClient) FirstMessage() []byte {
	c.clientFirstBare = fmt.Sprintf("n=%s,r=%s", escapeSaslName(c.user), c.clientNonce)

	return []byte(clientFirstGS2Header + c.clientFirstBare)
}

// escapeSaslName applies the RFC 5802 saslname escaping ("=" -> "=3D", ","
// -> "=2C"). PostgreSQL ignores the authentication identity in this
// position but the escaping rule still applies to whatever value is sent.
func escapeSaslName(s string) string {
	s = strings.ReplaceAll(s, "=", "=3D")
	return strings.ReplaceAll(s, ",", "=2C")
}

// HandleServerFirst consumes the server-first-message and returns the
// client-final-message to send as the PasswordMessage payload.
func (c *ScramClient) HandleServerFirst(serverFirst []byte) ([]byte, error) {
	nonce, salt, iterations, err := parseServerFirst(string(serverFirst))
	if err != nil {
		return nil, err
	}

	if !strings.HasPrefix(nonce, c.clientNonce) {
		return nil, fmt.Errorf("scram: server nonce does not extend client nonce")
	}

	c.saltedPassword = pbkdf2.Key([]byte(c.password), salt, iterations, sha256.Size, sha256.New)

	clientKey := hmacSHA256(c.saltedPassword, []byte("Client Key"))
	storedKey := sha256Sum(clientKey)

	channelBinding := "c=" + base64.StdEncoding.EncodeToString([]byte(clientFirstGS2Header))
	clientFinalWithoutProof := fmt.Sprintf("%s,r=%s", channelBinding, nonce)

	c.authMessage = c.clientFirstBare + "," + string(serverFirst) + "," + clientFinalWithoutProof

	clientSignature := hmacSHA256(storedKey, []byte(c.authMessage))
	clientProof := xorBytes(clientKey, clientSignature)

	clientFinal := clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(clientProof)

	return []byte(clientFinal), nil
}

// HandleServerFinal verifies the server's signature in the
// AuthenticationSASLFinal payload, completing the mutual authentication
// SCRAM provides.
func (c *ScramClient) HandleServerFinal(serverFinal []byte) error {
	serverKey := hmacSHA256(c.saltedPassword, []byte("Server Key"))
	expected := "v=" + base64.StdEncoding.EncodeToString(hmacSHA256(serverKey, []byte(c.authMessage)))

	if string(serverFinal) != expected {
		return fmt.Errorf("scram: server signature verification failed")
	}

	return nil
}

// parseServerFirst parses "r=<nonce>,s=<salt>,i=<iterations>".
func parseServerFirst(msg string) (nonce string, salt []byte, iterations int, err error) {
	for _, part := range strings.Split(msg, ",") {
		switch {
		case strings.HasPrefix(part, "r="):
			nonce = part[2:]
		case strings.HasPrefix(part, "s="):
			salt, err = base64.StdEncoding.DecodeString(part[2:])
			if err != nil {
				return "", nil, 0, fmt.Errorf("scram: decoding salt: %w", err)
			}
		case strings.HasPrefix(part, "i="):
			iterations, err = strconv.Atoi(part[2:])
			if err != nil {
				return "", nil, 0, fmt.Errorf("scram: parsing iteration count: %w", err)
			}
		}
	}

	if nonce == "" || salt == nil || iterations == 0 {
		return "", nil, 0, fmt.Errorf("scram: incomplete server-first-message %q", msg)
	}

	return nonce, salt, iterations, nil
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)

	return h.Sum(nil)
}

func sha256Sum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}

	return out
}
