package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// ClaimsParser reads the subject, email and expiry of a provider access token.
//
// With a secret the HS256 signature is verified. Without one the token is only
// decoded: the backend verifies it again on every data call, so the decoded
// claims are used for routing (subscription filter, insert payload), never as
// proof of identity towards the data.
type ClaimsParser struct {
	secret []byte
}

func NewClaimsParser(secret string) *ClaimsParser {
	p := &ClaimsParser{}
	if secret != "" {
		p.secret = []byte(secret)
	}
	return p
}

// Parse fills a Session from the access token. Expiry is not enforced here so
// an expired token can still be matched to its refresh token.
func (p *ClaimsParser) Parse(accessToken string) (*Session, error) {
	var claims accessClaims

	if p.secret == nil {
		if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	} else {
		_, err := jwt.ParseWithClaims(accessToken, &claims,
			func(*jwt.Token) (interface{}, error) { return p.secret, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	s := &Session{
		AccessToken: accessToken,
		UserID:      claims.Subject,
		Email:       claims.Email,
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

// Remaining returns how long the token is still valid, zero when expired or unparseable.
func (p *ClaimsParser) Remaining(accessToken string, now time.Time) time.Duration {
	s, err := p.Parse(accessToken)
	if err != nil || s.ExpiresAt.IsZero() {
		return 0
	}
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
