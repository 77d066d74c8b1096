// Package rtc issues access tokens for the third-party audio/video provider.
// The core treats tokens as opaque and passes them through to clients.
package rtc

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/AgoraIO-Community/go-tokenbuilder/rtctokenbuilder2"
)

type Role string

const (
	RolePublisher  Role = "publisher"
	RoleSubscriber Role = "subscriber"
)

var ErrNotConfigured = errors.New("rtc: app id or certificate not configured")

type Token struct {
	Token       string    `json:"token"`
	AppID       string    `json:"appId"`
	ChannelName string    `json:"channelName"`
	UID         string    `json:"uid"`
	Role        Role      `json:"role"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type TokenIssuer interface {
	IssueToken(channelName, uid string, role Role) (*Token, error)
}

// AgoraIssuer builds version 007 Agora RTC tokens. The channel is the call id
// and the user account is the caller's identity id, so guests and
// authenticated users share one path.
type AgoraIssuer struct {
	appID       string
	certificate string
	ttl         time.Duration
	now         func() time.Time
}

func NewAgoraIssuer(appID, certificate string, ttl time.Duration) *AgoraIssuer {
	return &AgoraIssuer{
		appID:       appID,
		certificate: certificate,
		ttl:         ttl,
		now:         time.Now,
	}
}

// WithClock replaces the time source used for the reported expiry.
func (i *AgoraIssuer) WithClock(now func() time.Time) *AgoraIssuer {
	i.now = now
	return i
}

func (i *AgoraIssuer) Configured() bool {
	return i.appID != "" && i.certificate != ""
}

func (i *AgoraIssuer) IssueToken(channelName, uid string, role Role) (*Token, error) {
	if !i.Configured() {
		return nil, ErrNotConfigured
	}
	if channelName == "" {
		return nil, fmt.Errorf("rtc: channel name is required")
	}
	if uid == "" {
		return nil, fmt.Errorf("rtc: uid is required")
	}

	var agoraRole rtctokenbuilder2.Role
	switch role {
	case RolePublisher:
		agoraRole = rtctokenbuilder2.RolePublisher
	case RoleSubscriber:
		agoraRole = rtctokenbuilder2.RoleSubscriber
	default:
		return nil, fmt.Errorf("rtc: unknown role %q", role)
	}

	// Both expiries are relative to issue time, in seconds.
	seconds := i.ttl / time.Second
	if seconds <= 0 || seconds > math.MaxUint32 {
		return nil, fmt.Errorf("rtc: token ttl %s out of range", i.ttl)
	}
	expire := uint32(seconds)

	token, err := rtctokenbuilder2.BuildTokenWithUserAccount(i.appID, i.certificate, channelName, uid, agoraRole, expire, expire)
	if err != nil {
		return nil, fmt.Errorf("rtc: build token: %w", err)
	}

	return &Token{
		Token:       token,
		AppID:       i.appID,
		ChannelName: channelName,
		UID:         uid,
		Role:        role,
		ExpiresAt:   i.now().UTC().Add(time.Duration(expire) * time.Second).Truncate(time.Second),
	}, nil
}
