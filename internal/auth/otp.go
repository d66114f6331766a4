package auth

import (
	"crypto/rand"
	"errors"
	"math/big"
	"sync"
	"time"
)

var (
	ErrNoPendingRegistration = errors.New("no pending registration")
	ErrOTPExpired            = errors.New("otp expired")
	ErrOTPMismatch           = errors.New("incorrect otp")
)

// PendingRegistration holds signup details awaiting OTP verification.
// The password stays plaintext here; it is hashed only once the code is
// confirmed and the account is actually created.
type PendingRegistration struct {
	Name      string
	Password  string
	OTP       string
	CreatedAt time.Time
}

// OTPLedger is the in-memory registry of pending registrations, keyed
// by email. Entries expire after ttl and are removed on successful
// verification.
type OTPLedger struct {
	mu      sync.Mutex
	entries map[string]PendingRegistration
	ttl     time.Duration
	now     func() time.Time
}

// NewOTPLedger constructs a ledger with the given entry lifetime.
func NewOTPLedger(ttl time.Duration) *OTPLedger {
	return &OTPLedger{
		entries: make(map[string]PendingRegistration),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Begin records a pending registration and returns the generated code.
// Re-registering the same email refreshes the code and expiry but keeps
// the originally submitted name and password.
func (l *OTPLedger) Begin(email, name, password string) (string, error) {
	otp, err := generateOTP()
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[email]
	if !ok {
		entry = PendingRegistration{Name: name, Password: password}
	}
	entry.OTP = otp
	entry.CreatedAt = l.now()
	l.entries[email] = entry
	return otp, nil
}

// Verify checks the submitted code and, on success, consumes the entry.
// Expired entries are dropped; a mismatched code leaves the entry in
// place so the user may retry.
func (l *OTPLedger) Verify(email, otp string) (PendingRegistration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[email]
	if !ok {
		return PendingRegistration{}, ErrNoPendingRegistration
	}
	if l.now().Sub(entry.CreatedAt) > l.ttl {
		delete(l.entries, email)
		return PendingRegistration{}, ErrOTPExpired
	}
	if entry.OTP != otp {
		return PendingRegistration{}, ErrOTPMismatch
	}
	delete(l.entries, email)
	return entry, nil
}

// Drop removes a pending registration, if any.
func (l *OTPLedger) Drop(email string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, email)
}

func generateOTP() (string, error) {
	// six digits, never starting with zero
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	code := n.Int64() + 100000
	return big.NewInt(code).String(), nil
}
