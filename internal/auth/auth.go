// Package auth implements the MD5 password hash and the SASL SCRAM-SHA-256
// exchange a PostgreSQL backend may request during startup. Cleartext
// passwords need no transformation and are sent by the connection itself.
package auth

import "bytes"

// ParseMechanisms splits the null-terminated, double-null-terminated
// mechanism list carried by an AuthenticationSASL message body into its
// individual mechanism names.
func ParseMechanisms(data []byte) []string {
	var mechs []string

	for len(data) > 0 {
		idx := bytes.IndexByte(data, 0)
		if idx < 0 {
			break
		}

		if idx > 0 {
			mechs = append(mechs, string(data[:idx]))
		}

		data = data[idx+1:]
	}

	return mechs
}
