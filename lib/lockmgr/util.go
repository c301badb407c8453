package lockmgr

import (
	"crypto/rand"
)

const (
	ownerIDLength = 256
)

// generateOwnerID creates the random owner ID a unit of work holds its
// namespace locks under. Only the creator of the ID can release the lock.
func generateOwnerID() ([]byte, error) {
	randomBytes := make([]byte, ownerIDLength)
	_, err := rand.Read(randomBytes)
	return randomBytes, err
}
