// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Configuration model: bind target, backpressure watermarks, HTTP/2 tunables, TLS modes.
// Configuration is immutable after Server construction (§4.I); LoadConfig reads it once
// from a viper.Viper, the collaborator this codebase uses for file/env-backed config.

package htcore

import (
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// BackpressureConfig gates the transport's read-pause/resume thresholds (§5). It is not
// enforced by this package's own buffering, which never exceeds a single chunk stash;
// it is exposed for transport collaborators that do buffer to honor.
type BackpressureConfig struct {
	Low  int
	High int
}

// Validate enforces invariant 7: 0 <= low <= high.
func (b BackpressureConfig) Validate() error {
	if b.Low < 0 || b.Low > b.High {
		return errors.New("htcore: backpressureStrategy requires 0 <= low <= high")
	}
	return nil
}

// Config is the immutable, fully-resolved configuration of one Server.
type Config struct {
	Host string
	Port int // 0 lets the OS pick an ephemeral port; read the bound value back via Server.Addr

	Transport    TransportConfig
	Backpressure BackpressureConfig
}

// BindAddress returns the host:port net.Listen target.
func (c *Config) BindAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate runs every configuration-error check this package knows about (§7 taxonomy 1).
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("htcore: httpServer.bindTarget.host is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return errors.New("htcore: httpServer.bindTarget.port is invalid")
	}
	if err := c.Backpressure.Validate(); err != nil {
		return err
	}
	return c.Transport.Validate()
}

// LoadConfig reads the httpServer.* keys documented in the spec (§6) from v, applying
// their defaults, and returns a validated Config. v is expected to already have its
// source (file, env, flags) bound by the caller — LoadConfig only concerns itself with
// key names, defaults, and structural validation.
func LoadConfig(v *viper.Viper) (*Config, error) {
	v.SetDefault("httpServer.backpressureStrategy.low", 2)
	v.SetDefault("httpServer.backpressureStrategy.high", 10)
	v.SetDefault("httpServer.http2.maxFrameSize", 1<<14)
	v.SetDefault("httpServer.http2.targetWindowSize", 1<<16-1)
	v.SetDefault("httpServer.transportSecurity.security", "plaintext")
	v.SetDefault("httpServer.transportSecurity.refreshInterval", 30)
	v.SetDefault("httpServer.transportSecurity.certificateVerificationMode", "")

	cfg := &Config{
		Host: v.GetString("httpServer.bindTarget.host"),
		Port: v.GetInt("httpServer.bindTarget.port"),
		Backpressure: BackpressureConfig{
			Low:  v.GetInt("httpServer.backpressureStrategy.low"),
			High: v.GetInt("httpServer.backpressureStrategy.high"),
		},
		Transport: TransportConfig{
			CertificateChainPEM:  []byte(v.GetString("httpServer.transportSecurity.certificateChainPEMString")),
			PrivateKeyPEM:        []byte(v.GetString("httpServer.transportSecurity.privateKeyPEMString")),
			CertificateChainPath: v.GetString("httpServer.transportSecurity.certificateChainPEMPath"),
			PrivateKeyPath:       v.GetString("httpServer.transportSecurity.privateKeyPEMPath"),
			RefreshInterval:      time.Duration(v.GetInt("httpServer.transportSecurity.refreshInterval")) * time.Second,
			MaxFrameSize:         uint32(v.GetUint("httpServer.http2.maxFrameSize")),
			TargetWindowSize:     uint32(v.GetUint("httpServer.http2.targetWindowSize")),
			MaxConcurrentStreams: uint32(v.GetUint("httpServer.http2.maxConcurrentStreams")),
		},
	}

	security, err := parseSecurityMode(v.GetString("httpServer.transportSecurity.security"))
	if err != nil {
		return nil, err
	}
	cfg.Transport.Security = security

	verificationMode, err := parseVerificationMode(v.GetString("httpServer.transportSecurity.certificateVerificationMode"))
	if err != nil {
		return nil, err
	}
	cfg.Transport.VerificationMode = verificationMode

	if pemStrings := v.GetStringSlice("httpServer.transportSecurity.trustRoots"); len(pemStrings) > 0 {
		pool := x509.NewCertPool()
		for _, pem := range pemStrings {
			if !pool.AppendCertsFromPEM([]byte(pem)) {
				return nil, fmt.Errorf("htcore: transportSecurity.trustRoots contains an entry that is not a valid PEM certificate")
			}
		}
		cfg.Transport.TrustRoots = pool
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseSecurityMode(s string) (SecurityMode, error) {
	switch s {
	case "", "plaintext":
		return SecurityPlaintext, nil
	case "tls":
		return SecurityTLS, nil
	case "reloadingTLS":
		return SecurityReloadingTLS, nil
	case "mTLS":
		return SecurityMTLS, nil
	case "reloadingMTLS":
		return SecurityReloadingMTLS, nil
	default:
		return 0, fmt.Errorf("htcore: unknown transportSecurity.security %q", s)
	}
}

func parseVerificationMode(s string) (VerificationMode, error) {
	switch s {
	case "":
		return VerificationRequired, nil
	case "optionalVerification":
		return VerificationOptional, nil
	case "noHostnameVerification":
		return VerificationNoHostnameCheck, nil
	default:
		return 0, fmt.Errorf("htcore: unknown certificateVerificationMode %q", s)
	}
}
