package routine

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"

	"github.com/bft-labs/testvisor/internal/ports"
)

// Check is one known-answer test. It returns nil when the primitive
// produced the expected output.
type Check struct {
	Name string
	Run  func() error
}

// Builtin runs its checks in order. The status of an iteration is zero when
// every check passes, otherwise the 1-based index of the first failing check.
type Builtin struct {
	checks []Check
	logger ports.Logger
}

// NewBuiltin creates a routine running DefaultChecks.
func NewBuiltin(logger ports.Logger) *Builtin {
	return newBuiltin(logger, DefaultChecks()...)
}

func newBuiltin(logger ports.Logger, checks ...Check) *Builtin {
	return &Builtin{checks: checks, logger: logger}
}

// Name implements ports.TestRoutine.
func (b *Builtin) Name() string { return "builtin" }

// Run implements ports.TestRoutine.
func (b *Builtin) Run(ctx context.Context) int {
	for i, c := range b.checks {
		if ctx.Err() != nil {
			return 0
		}
		if err := c.Run(); err != nil {
			b.logger.Error("check failed", ports.String("check", c.Name), ports.Err(err))
			return i + 1
		}
		b.logger.Debug("check passed", ports.String("check", c.Name))
	}
	return 0
}

// DefaultChecks returns the built-in known-answer tests.
func DefaultChecks() []Check {
	return []Check{
		{Name: "sha3-256", Run: checkSHA3},
		{Name: "blake2b-512", Run: checkBLAKE2b},
		{Name: "hkdf-sha256", Run: checkHKDF},
		{Name: "chacha20poly1305", Run: checkChaCha20Poly1305},
	}
}

func expectHex(what string, got []byte, want string) error {
	if h := hex.EncodeToString(got); h != want {
		return fmt.Errorf("%s: got %s, want %s", what, h, want)
	}
	return nil
}

func checkSHA3() error {
	empty := sha3.Sum256(nil)
	if err := expectHex("sha3-256(\"\")", empty[:],
		"a7ffc6f8bf1ed76651c14756a061d662f580ff4de43b49fa82d80a4b80f8434a"); err != nil {
		return err
	}
	abc := sha3.Sum256([]byte("abc"))
	return expectHex("sha3-256(abc)", abc[:],
		"3a985da74fe225b2045c172d6bd390bd855f086e3e9d525b46bfe24511431532")
}

func checkBLAKE2b() error {
	sum := blake2b.Sum512([]byte("abc"))
	return expectHex("blake2b-512(abc)", sum[:],
		"ba80a53f981c4d0d6a2797b69f12f6e94c212f14685ac4b74b12bb6fdbffa2d1"+
			"7d87c5392aab792dc252d5de4533cc9518d38aa8dbf1925ab92386edd4009923")
}

// checkHKDF runs RFC 5869 test case 1.
func checkHKDF() error {
	ikm := bytes.Repeat([]byte{0x0b}, 22)
	salt, _ := hex.DecodeString("000102030405060708090a0b0c")
	info, _ := hex.DecodeString("f0f1f2f3f4f5f6f7f8f9")

	okm := make([]byte, 42)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, info), okm); err != nil {
		return err
	}
	return expectHex("hkdf-sha256", okm,
		"3cb25f25faacd57a90434f64d0362f2a2d2d0a90cf1a5a4c5db02d56ecc4c5bf34007208d5b887185865")
}

// checkChaCha20Poly1305 seals a random message and verifies that it opens
// and that a flipped bit is rejected.
func checkChaCha20Poly1305() error {
	key := make([]byte, chacha20poly1305.KeySize)
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(key); err != nil {
		return err
	}
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return err
	}

	plain := []byte("testvisor known answer")
	aad := []byte("iteration")
	sealed := aead.Seal(nil, nonce, plain, aad)

	opened, err := aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	if !bytes.Equal(opened, plain) {
		return fmt.Errorf("open returned %q", opened)
	}

	sealed[0] ^= 0x01
	if _, err := aead.Open(nil, nonce, sealed, aad); err == nil {
		return fmt.Errorf("tampered ciphertext accepted")
	}
	return nil
}
