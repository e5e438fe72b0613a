// Package checkin verifies signed QR check-in payloads for missions that
// require physical presence confirmation.
package checkin

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	engineerrors "github.com/louisbranch/questline/internal/errors"
)

// CheckIn is the verified content of one scan payload.
type CheckIn struct {
	MissionID string
	Station   string
	IssuedAt  time.Time
}

// Verifier validates a raw scan payload and extracts its check-in.
type Verifier interface {
	Verify(payload string) (CheckIn, error)
}

type claims struct {
	MissionID string `json:"mission_id"`
	Station   string `json:"station"`
	jwt.RegisteredClaims
}

// HMACVerifier verifies payloads signed with a shared HMAC secret. Payloads
// older than MaxAge are rejected to stop replayed screenshots of old codes.
type HMACVerifier struct {
	Secret []byte
	MaxAge time.Duration
	Now    func() time.Time
}

// NewHMACVerifier builds a verifier with the given secret and payload max age.
func NewHMACVerifier(secret []byte, maxAge time.Duration) *HMACVerifier {
	return &HMACVerifier{Secret: secret, MaxAge: maxAge}
}

// Verify parses and validates the scan payload.
func (v *HMACVerifier) Verify(payload string) (CheckIn, error) {
	if v == nil || len(v.Secret) == 0 {
		return CheckIn{}, engineerrors.New(engineerrors.CodeCheckInInvalid, "check-in verifier is not configured")
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return CheckIn{}, engineerrors.New(engineerrors.CodeCheckInInvalid, "check-in payload is required")
	}

	now := time.Now
	if v.Now != nil {
		now = v.Now
	}

	parsed := &claims{}
	token, err := jwt.ParseWithClaims(payload, parsed, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, engineerrors.New(engineerrors.CodeCheckInInvalid, "unexpected signing method")
		}
		return v.Secret, nil
	}, jwt.WithTimeFunc(now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return CheckIn{}, engineerrors.Wrap(engineerrors.CodeCheckInInvalid, "check-in payload rejected", err)
	}
	if !token.Valid {
		return CheckIn{}, engineerrors.New(engineerrors.CodeCheckInInvalid, "check-in payload rejected")
	}
	if strings.TrimSpace(parsed.MissionID) == "" {
		return CheckIn{}, engineerrors.New(engineerrors.CodeCheckInInvalid, "check-in payload has no mission")
	}
	if parsed.IssuedAt == nil {
		return CheckIn{}, engineerrors.New(engineerrors.CodeCheckInInvalid, "check-in payload has no issue time")
	}
	issuedAt := parsed.IssuedAt.Time
	if v.MaxAge > 0 && now().Sub(issuedAt) > v.MaxAge {
		return CheckIn{}, engineerrors.New(engineerrors.CodeCheckInInvalid, "check-in payload has expired")
	}

	return CheckIn{
		MissionID: parsed.MissionID,
		Station:   parsed.Station,
		IssuedAt:  issuedAt.UTC(),
	}, nil
}

// Sign produces a payload the verifier accepts. Used by station tooling and tests.
func (v *HMACVerifier) Sign(missionID, station string, issuedAt time.Time) (string, error) {
	if v == nil || len(v.Secret) == 0 {
		return "", engineerrors.New(engineerrors.CodeCheckInInvalid, "check-in verifier is not configured")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims{
		MissionID: missionID,
		Station:   station,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(issuedAt),
		},
	})
	signed, err := token.SignedString(v.Secret)
	if err != nil {
		return "", engineerrors.Wrap(engineerrors.CodeCheckInInvalid, "sign check-in payload", err)
	}
	return signed, nil
}
