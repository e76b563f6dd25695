// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package htcore

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// selfSignedDER generates a throwaway self-signed certificate for tests that need a raw
// DER-encoded chain to hand to a VerifyPeerCertificate hook.
func selfSignedDER(t *testing.T) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test"},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	return der
}

func noopVerifier(chain []*x509.Certificate) (*PeerVerified, *VerificationFailed) {
	return &PeerVerified{Chain: chain}, nil
}

// TestTransportConfig_ValidateRejectsVerifierWithoutMTLS pins law 7: a custom
// verification callback outside mTLS modes is a configuration error.
func TestTransportConfig_ValidateRejectsVerifierWithoutMTLS(t *testing.T) {
	for _, mode := range []SecurityMode{SecurityPlaintext, SecurityTLS, SecurityReloadingTLS} {
		cfg := &TransportConfig{Security: mode, VerifyPeer: noopVerifier}
		assert.ErrorIs(t, cfg.Validate(), ErrCustomVerificationCallbackWithoutMTLS)
	}
}

func TestTransportConfig_ValidateAllowsVerifierUnderMTLS(t *testing.T) {
	for _, mode := range []SecurityMode{SecurityMTLS, SecurityReloadingMTLS} {
		cfg := &TransportConfig{Security: mode, VerifyPeer: noopVerifier}
		assert.NoError(t, cfg.Validate())
	}
}

func TestChainVerifierWithoutHostname_RejectsUntrustedChain(t *testing.T) {
	roots := x509.NewCertPool()
	verify := chainVerifierWithoutHostname(roots, nil, nil)
	assert.Error(t, verify([][]byte{selfSignedDER(t)}, nil))
}

func TestVerifyCallbackAdapter_CapturesReturnedChain(t *testing.T) {
	der := selfSignedDER(t)
	presented, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	substitute := []*x509.Certificate{presented}
	extra := func(chain []*x509.Certificate) (*PeerVerified, *VerificationFailed) {
		return &PeerVerified{Chain: substitute}, nil
	}

	var captured []*x509.Certificate
	verify := verifyCallbackAdapter(extra, func(chain []*x509.Certificate) { captured = chain })

	err = verify([][]byte{der}, nil)
	require.NoError(t, err)
	assert.Equal(t, substitute, captured)
}

func TestVerifyCallbackAdapter_NoCaptureWithoutOnVerified(t *testing.T) {
	verify := verifyCallbackAdapter(noopVerifier, nil)
	assert.NoError(t, verify([][]byte{selfSignedDER(t)}, nil))
}

// TestTransportConfig_Clamp pins invariant 8.
func TestTransportConfig_Clamp(t *testing.T) {
	tooSmall := &TransportConfig{MaxFrameSize: 1, TargetWindowSize: 1 << 31}
	tooSmall.clamp()
	assert.Equal(t, uint32(1<<14), tooSmall.MaxFrameSize)
	assert.Equal(t, uint32(1<<31-1), tooSmall.TargetWindowSize)

	tooLarge := &TransportConfig{MaxFrameSize: 1 << 25}
	tooLarge.clamp()
	assert.Equal(t, uint32(1<<24-1), tooLarge.MaxFrameSize)
}
