package security

import "golang.org/x/crypto/bcrypt"

// bcrypt work factor for account passwords.
const passwordHashCost = 12

// HashPassword derives a bcrypt hash for storing an account password.
func HashPassword(plaintext string) (string, error) {
	hash, errHash := bcrypt.GenerateFromPassword([]byte(plaintext), passwordHashCost)
	if errHash != nil {
		return "", errHash
	}
	return string(hash), nil
}

// CheckPassword reports whether plaintext matches the stored bcrypt hash.
func CheckPassword(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
