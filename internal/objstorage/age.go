package objstorage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"
)

// EncryptingStorage wraps an ObjStorage and encrypts payloads at rest with
// filippo.io/age X25519 keys. The public key is stored in plaintext so writes
// never need the passphrase; the private key is encrypted with the user's
// passphrase using age's scrypt-based passphrase encryption, and reads require
// Unlock to have been called.
//
// The stored object size differs from the payload size, so the inner Put is
// called with the ciphertext length, not the plaintext length. Keys are
// unchanged: objects are still addressed by the plaintext digest.
type EncryptingStorage struct {
	inner          ObjStorage
	publicKeyPath  string
	privateKeyPath string
	identity       age.Identity
}

var _ ObjStorage = (*EncryptingStorage)(nil)

// NewEncryptingStorage wraps inner with age encryption using the given key
// file paths.
func NewEncryptingStorage(inner ObjStorage, publicKeyPath, privateKeyPath string) *EncryptingStorage {
	return &EncryptingStorage{
		inner:          inner,
		publicKeyPath:  publicKeyPath,
		privateKeyPath: privateKeyPath,
	}
}

// Setup generates a new X25519 key pair, stores the public key in plaintext,
// and encrypts the private key with the passphrase.
func (e *EncryptingStorage) Setup(passphrase string) error {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(e.publicKeyPath), 0700); err != nil {
		return fmt.Errorf("creating public key directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(e.privateKeyPath), 0700); err != nil {
		return fmt.Errorf("creating private key directory: %w", err)
	}

	if err := os.WriteFile(e.publicKeyPath, []byte(identity.Recipient().String()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	privFile, err := os.OpenFile(e.privateKeyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating private key file: %w", err)
	}
	defer privFile.Close()

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}

	w, err := age.Encrypt(privFile, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}

	if _, err := io.WriteString(w, identity.String()+"\n"); err != nil {
		return fmt.Errorf("writing encrypted private key: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encrypted private key: %w", err)
	}

	return nil
}

// Unlock decrypts the private key with the passphrase, enabling Get.
func (e *EncryptingStorage) Unlock(passphrase string) error {
	privData, err := os.ReadFile(e.privateKeyPath)
	if err != nil {
		return fmt.Errorf("reading private key file: %w", err)
	}

	scryptIdentity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt identity: %w", err)
	}

	decReader, err := age.Decrypt(bytes.NewReader(privData), scryptIdentity)
	if err != nil {
		return fmt.Errorf("decrypting private key: %w", err)
	}

	keyData, err := io.ReadAll(decReader)
	if err != nil {
		return fmt.Errorf("reading decrypted private key: %w", err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(keyData))
	if err != nil {
		return fmt.Errorf("parsing private key: %w", err)
	}

	if len(identities) == 0 {
		return fmt.Errorf("no identities found in private key")
	}

	e.identity = identities[0]
	return nil
}

// IsConfigured returns true if both key files exist.
func (e *EncryptingStorage) IsConfigured() bool {
	if _, err := os.Stat(e.publicKeyPath); err != nil {
		return false
	}
	if _, err := os.Stat(e.privateKeyPath); err != nil {
		return false
	}
	return true
}

func (e *EncryptingStorage) Put(key string, r io.Reader, size int64) error {
	recipient, err := e.loadRecipient()
	if err != nil {
		return fmt.Errorf("loading public key: %w", err)
	}

	// Encrypt to a buffer first: the inner storage needs the ciphertext
	// length up front.
	var buf bytes.Buffer
	encWriter, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	n, err := io.Copy(encWriter, r)
	if err != nil {
		return fmt.Errorf("encrypting payload: %w", err)
	}
	if n != size {
		return fmt.Errorf("payload size mismatch for %s: expected %d, read %d", key, size, n)
	}
	if err := encWriter.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}

	return e.inner.Put(key, &buf, int64(buf.Len()))
}

func (e *EncryptingStorage) Get(key string, w io.Writer) error {
	if e.identity == nil {
		return fmt.Errorf("storage is locked: call Unlock first")
	}

	var buf bytes.Buffer
	if err := e.inner.Get(key, &buf); err != nil {
		return err
	}

	decReader, err := age.Decrypt(&buf, e.identity)
	if err != nil {
		return fmt.Errorf("creating decrypted reader: %w", err)
	}
	if _, err := io.Copy(w, decReader); err != nil {
		return fmt.Errorf("decrypting payload: %w", err)
	}
	return nil
}

func (e *EncryptingStorage) Contains(key string) (bool, error) {
	return e.inner.Contains(key)
}

func (e *EncryptingStorage) Check() error {
	if !e.IsConfigured() {
		return fmt.Errorf("encryption keys not set up")
	}
	return e.inner.Check()
}

func (e *EncryptingStorage) loadRecipient() (age.Recipient, error) {
	pubData, err := os.ReadFile(e.publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}

	recipients, err := age.ParseRecipients(bytes.NewReader(pubData))
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}

	if len(recipients) == 0 {
		return nil, fmt.Errorf("no recipients found in public key file")
	}

	return recipients[0], nil
}
