package profile

import (
	"crypto/cipher"
	"crypto/rand"
	"os"

	"glen/internal/utils"
)

// seal encrypts data with a random nonce prepended to the ciphertext.
func seal(aead cipher.AEAD, data []byte) ([]byte, error) {
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, data, nil), nil
}

func open(aead cipher.AEAD, blob []byte) ([]byte, error) {
	if len(blob) < aead.NonceSize() {
		return nil, utils.InvalidPassword
	}
	nonce := blob[:aead.NonceSize()]
	return aead.Open(nil, nonce, blob[aead.NonceSize():], nil)
}

func getProfilePath(username, path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return "", utils.ProfileNotFound
		}
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	profilePath := homeDir + "/.glen/" + username + "_profile.json"
	if _, err := os.Stat(profilePath); os.IsNotExist(err) {
		return "", utils.ProfileNotFound
	}
	return profilePath, nil
}

func createProfilePath(username string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(homeDir+"/.glen", 0o700); err != nil {
		return "", err
	}
	return homeDir + "/.glen/" + username + "_profile.json", nil
}
