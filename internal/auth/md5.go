package auth

import (
	"crypto/md5"
	"encoding/hex"
)

// MD5Password computes PostgreSQL's MD5 challenge response:
// "md5" + hex(md5(hex(md5(password+user)) + salt)).
func MD5Password(user, password string, salt [4]byte) string {
	inner := md5Hex(password + user)
	outer := md5Hex(inner + string(salt[:]))

	return "md5" + outer
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
