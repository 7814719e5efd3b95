package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

// GenerateSSHKeyPair creates a new Ed25519 key pair, writes the private key
// (mode 600) to dir/name and the public key to dir/name.pub (mode 644), and
// returns the private key path, the authorized_keys-format public key
// line, and its SHA256 fingerprint.
func GenerateSSHKeyPair(dir, name string) (privatePath, publicKey, fingerprint string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", "", fmt.Errorf("sshkeygen: generating key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		return "", "", "", fmt.Errorf("sshkeygen: marshalling private key: %w", err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", "", "", fmt.Errorf("sshkeygen: creating keys dir: %w", err)
	}

	privatePath = filepath.Join(dir, name)
	if err := os.WriteFile(privatePath, pem.EncodeToMemory(block), 0o600); err != nil {
		return "", "", "", fmt.Errorf("sshkeygen: writing private key: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", "", "", fmt.Errorf("sshkeygen: deriving public key: %w", err)
	}
	publicKey = fmt.Sprintf("%s %s", sshPub.Type(), base64.StdEncoding.EncodeToString(sshPub.Marshal()))
	if err := os.WriteFile(privatePath+".pub", []byte(publicKey+"\n"), 0o644); err != nil {
		return "", "", "", fmt.Errorf("sshkeygen: writing public key: %w", err)
	}

	fingerprint = fingerprintOf(sshPub)
	return privatePath, publicKey, fingerprint, nil
}

// fingerprintOf returns the SHA256 fingerprint in the same
// "SHA256:<base64, no padding>" format `ssh-keygen -l` prints.
func fingerprintOf(pub ssh.PublicKey) string {
	sum := sha256.Sum256(pub.Marshal())
	return "SHA256:" + base64.RawStdEncoding.EncodeToString(sum[:])
}
