package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/infrastructure/config"
	"golang.org/x/oauth2"
)

// Exchanger trades a refresh token for a new token pair
type Exchanger interface {
	Exchange(ctx context.Context, refreshToken string) (integration.TokenData, error)
}

// OAuthExchanger performs the refresh_token grant against the provider's token endpoint
type OAuthExchanger struct {
	oauth  *oauth2.Config
	client *http.Client
}

// NewOAuthExchanger creates an exchanger. A nil client uses a client with the default timeout.
func NewOAuthExchanger(cfg config.CredentialConfig, client *http.Client) *OAuthExchanger {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &OAuthExchanger{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client: client,
	}
}

// Exchange redeems refreshToken. Revoked or missing refresh tokens map to
// ErrReauthorizationRequired, marked permanent so queued work is not retried.
func (e *OAuthExchanger) Exchange(ctx context.Context, refreshToken string) (integration.TokenData, error) {
	if refreshToken == "" {
		return integration.TokenData{}, shared.Permanent(integration.ErrReauthorizationRequired)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.client)
	// An empty access token forces the token source to refresh immediately
	tok, err := e.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return integration.TokenData{}, classifyExchangeError(err)
	}

	next := tok.RefreshToken
	if next == "" {
		next = refreshToken
	}
	return integration.TokenData{
		AccessToken:  tok.AccessToken,
		RefreshToken: next,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry.UTC(),
	}, nil
}

func classifyExchangeError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return fmt.Errorf("%w: token exchange: %v", integration.ErrPlatformUnavailable, err)
	}
	if re.ErrorCode == "invalid_grant" {
		return shared.Permanent(fmt.Errorf("%w: %s", integration.ErrReauthorizationRequired, re.ErrorDescription))
	}
	status := 0
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: token endpoint", integration.ErrPlatformRateLimited)
	case status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: token endpoint returned %d", integration.ErrPlatformUnavailable, status)
	}
	return shared.Permanent(fmt.Errorf("%w: token endpoint returned %d %s", integration.ErrPlatformAuthFailed, status, re.ErrorCode))
}
