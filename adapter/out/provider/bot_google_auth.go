package provider

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"

	"calendar_bot/pkg/apperr"
	"calendar_bot/pkg/httputil"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// LoadOAuthConfig reads an OAuth client file downloaded from the Google Cloud
// console ("installed" or "web" application) and scopes it to Calendar.
func LoadOAuthConfig(credentialsFile string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, apperr.ConfigError(fmt.Sprintf("read google credentials %s: %v", credentialsFile, err))
	}
	cfg, err := google.ConfigFromJSON(b, calendar.CalendarScope)
	if err != nil {
		return nil, apperr.ConfigError(fmt.Sprintf("parse google credentials: %v", err))
	}
	return cfg, nil
}

// storedToken accepts both the oauth2.Token layout and the layout that stores
// the expiry as epoch milliseconds in expiry_date.
type storedToken struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	ExpiryDate   int64     `json:"expiry_date,omitempty"`
}

// ParseToken decodes a stored token.
func ParseToken(b []byte) (*oauth2.Token, error) {
	var st storedToken
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, err
	}
	if st.AccessToken == "" && st.RefreshToken == "" {
		return nil, fmt.Errorf("token has neither access nor refresh token")
	}

	tok := &oauth2.Token{
		AccessToken:  st.AccessToken,
		TokenType:    st.TokenType,
		RefreshToken: st.RefreshToken,
		Expiry:       st.Expiry,
	}
	if tok.Expiry.IsZero() && st.ExpiryDate > 0 {
		tok.Expiry = time.UnixMilli(st.ExpiryDate)
	}
	return tok, nil
}

// LoadToken reads a token file written by cmd/authorize.
func LoadToken(tokenFile string) (*oauth2.Token, error) {
	b, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, apperr.ConfigError(fmt.Sprintf("read google token %s: %v", tokenFile, err))
	}
	tok, err := ParseToken(b)
	if err != nil {
		return nil, apperr.ConfigError(fmt.Sprintf("parse google token: %v", err))
	}
	return tok, nil
}

// SaveToken writes tok to tokenFile, readable only by the owner.
func SaveToken(tokenFile string, tok *oauth2.Token) error {
	b, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return os.WriteFile(tokenFile, b, 0o600)
}

// NewCalendarService builds a Calendar client that refreshes tok as needed.
func NewCalendarService(ctx context.Context, oauthCfg *oauth2.Config, tok *oauth2.Token) (*calendar.Service, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httputil.GoogleClient())
	client := oauthCfg.Client(ctx, tok)
	svc, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, apperr.ExternalError("google_calendar", err)
	}
	return svc, nil
}
