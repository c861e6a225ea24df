// Package identity verifies the Telegram WebApp launch handshake.
//
// The embedded browser hands the page an initData query string signed by the
// bot token. Verify checks that signature and extracts the acting user.
package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingHash      = errors.New("init data has no hash")
	ErrInvalidSignature = errors.New("init data signature mismatch")
	ErrExpired          = errors.New("init data expired")
	ErrMissingUser      = errors.New("init data has no user")
)

// Identity is the acting user as asserted by the chat platform.
type Identity struct {
	ExternalID  string
	DisplayName string
	Handle      string
	// ReferrerID is taken from a "ref_<id>" start parameter, if any.
	ReferrerID string
}

type webAppUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// Verifier checks initData against a bot token.
type Verifier struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewVerifier creates a Verifier. A maxAge of zero disables the age check.
func NewVerifier(botToken string, maxAge time.Duration) *Verifier {
	return &Verifier{
		secret: secretKey(botToken),
		maxAge: maxAge,
		now:    time.Now,
	}
}

func secretKey(botToken string) []byte {
	mac := hmac.New(sha256.New, []byte("WebAppData"))
	mac.Write([]byte(botToken))
	return mac.Sum(nil)
}

// Verify validates the initData signature and freshness and returns the user.
func (v *Verifier) Verify(initData string) (*Identity, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse init data: %w", err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return nil, ErrMissingHash
	}
	expected := v.sign(values)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(hash))) {
		return nil, ErrInvalidSignature
	}

	if v.maxAge > 0 {
		authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid auth_date: %w", err)
		}
		if v.now().Sub(time.Unix(authDate, 0)) > v.maxAge {
			return nil, ErrExpired
		}
	}

	raw := values.Get("user")
	if raw == "" {
		return nil, ErrMissingUser
	}
	var u webAppUser
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("invalid user payload: %w", err)
	}
	if u.ID == 0 {
		return nil, ErrMissingUser
	}

	return &Identity{
		ExternalID:  strconv.FormatInt(u.ID, 10),
		DisplayName: strings.TrimSpace(u.FirstName + " " + u.LastName),
		Handle:      u.Username,
		ReferrerID:  ReferrerFromStartParam(values.Get("start_param")),
	}, nil
}

// Sign computes the hex signature for the given fields, ignoring any "hash"
// entry. It is what the platform does when it builds initData.
func (v *Verifier) Sign(values url.Values) string {
	return v.sign(values)
}

func (v *Verifier) sign(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + "=" + values.Get(k)
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}

// ReferrerFromStartParam extracts the referrer id from a "ref_<id>" deep-link
// parameter. Anything else yields "".
func ReferrerFromStartParam(p string) string {
	id, ok := strings.CutPrefix(p, "ref_")
	if !ok {
		return ""
	}
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return ""
	}
	return id
}
