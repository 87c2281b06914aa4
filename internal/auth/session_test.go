package auth

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSigner(t *testing.T) *Signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return NewSignerFromKey(key)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newManager(ttl time.Duration) (*SessionManager, *clock) {
	c := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := NewSessionManager(ttl)
	m.now = c.now
	return m, c
}

func login(t *testing.T, m *SessionManager, s *Signer) Session {
	t.Helper()
	c := m.Challenge(s.Address())
	sig, err := s.SignMessageHex([]byte(c.Message))
	require.NoError(t, err)
	sess, err := m.Verify(s.Address(), sig)
	require.NoError(t, err)
	return sess
}

func TestSigner_RoundTrip(t *testing.T) {
	s := newSigner(t)
	msg := []byte("hello market")

	sig, err := s.SignMessage(msg)
	require.NoError(t, err)
	require.Len(t, sig, crypto.SignatureLength)
	assert.Contains(t, []byte{27, 28}, sig[crypto.RecoveryIDOffset])

	sigHex, err := s.SignMessageHex(msg)
	require.NoError(t, err)

	addr, err := RecoverAddress(msg, sigHex)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), addr)

	// bare hex without 0x is accepted too
	ok, err := VerifySignature(msg, sigHex[2:], s.Address())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifySignature([]byte("other"), sigHex, s.Address())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewSigner_HexKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := hexutil.Encode(crypto.FromECDSA(key))

	s, err := NewSigner(hexKey)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), s.Address())

	_, err = NewSigner("not-a-key")
	require.Error(t, err)
}

func TestRecoverAddress_Malformed(t *testing.T) {
	_, err := RecoverAddress([]byte("x"), "0xzz")
	require.ErrorIs(t, err, ErrBadSignature)

	_, err = RecoverAddress([]byte("x"), "0x1234")
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestSessionManager_Login(t *testing.T) {
	m, _ := newManager(time.Hour)
	s := newSigner(t)

	sess := login(t, m, s)
	assert.Equal(t, s.Address(), sess.Address)
	assert.NotEmpty(t, sess.Token)

	addr, err := m.Resolve(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), addr)

	m.Revoke(sess.Token)
	_, err = m.Resolve(sess.Token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionManager_VerifyFailures(t *testing.T) {
	m, clk := newManager(time.Hour)
	alice := newSigner(t)
	mallory := newSigner(t)

	_, err := m.Verify(alice.Address(), "0x00")
	require.ErrorIs(t, err, ErrNoChallenge)

	// signed by the wrong key
	c := m.Challenge(alice.Address())
	sig, err := mallory.SignMessageHex([]byte(c.Message))
	require.NoError(t, err)
	_, err = m.Verify(alice.Address(), sig)
	require.ErrorIs(t, err, ErrBadSignature)

	// the failed attempt consumed the challenge
	sig, err = alice.SignMessageHex([]byte(c.Message))
	require.NoError(t, err)
	_, err = m.Verify(alice.Address(), sig)
	require.ErrorIs(t, err, ErrNoChallenge)

	c = m.Challenge(alice.Address())
	sig, err = alice.SignMessageHex([]byte(c.Message))
	require.NoError(t, err)
	clk.advance(ChallengeTTL + time.Second)
	_, err = m.Verify(alice.Address(), sig)
	require.ErrorIs(t, err, ErrExpired)
}

func TestSessionManager_SessionExpires(t *testing.T) {
	m, clk := newManager(time.Hour)
	sess := login(t, m, newSigner(t))

	clk.advance(time.Hour + time.Minute)
	_, err := m.Resolve(sess.Token)
	require.ErrorIs(t, err, ErrExpired)

	_, err = m.Resolve("")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionManager_Sweep(t *testing.T) {
	m, clk := newManager(10 * time.Minute)
	login(t, m, newSigner(t))
	m.Challenge(newSigner(t).Address())

	assert.Zero(t, m.Sweep())

	clk.advance(11 * time.Minute)
	assert.Equal(t, 2, m.Sweep())
}
