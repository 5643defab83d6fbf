package connector

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/crmbridge/bridge-server/internal/connector/httpclient"
	"github.com/crmbridge/bridge-server/internal/model"
	"github.com/crmbridge/bridge-server/internal/util"
)

// AuthorizeURL builds the CRM consent URL for the given state.
func AuthorizeURL(info OAuthInfo, state string) (string, error) {
	u, err := url.Parse(info.AuthorizeURL)
	if err != nil {
		return "", fmt.Errorf("parse authorize url: %w", err)
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", info.ClientID)
	q.Set("redirect_uri", info.RedirectURI)
	q.Set("state", state)
	if len(info.Scopes) > 0 {
		q.Set("scope", strings.Join(info.Scopes, " "))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ExchangeCode runs the authorization_code grant.
func ExchangeCode(ctx context.Context, client *httpclient.Client, info OAuthInfo, code string) (*model.TokenSet, error) {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {info.RedirectURI},
	}
	return tokenRequest(ctx, client, info, form)
}

// RefreshGrant runs the refresh_token grant.
func RefreshGrant(ctx context.Context, client *httpclient.Client, info OAuthInfo, refreshToken string) (*model.TokenSet, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	return tokenRequest(ctx, client, info, form)
}

func tokenRequest(ctx context.Context, client *httpclient.Client, info OAuthInfo, form url.Values) (*model.TokenSet, error) {
	headers := map[string]string{}
	if info.ClientAuthInHeader {
		headers["Authorization"] = "Basic " + util.BasicAuthValue(info.ClientID, info.ClientSecret)
	} else {
		form.Set("client_id", info.ClientID)
		form.Set("client_secret", info.ClientSecret)
	}

	resp, err := client.PostForm(ctx, info.TokenURL, form, headers)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}

	var tokens model.TokenSet
	if err := resp.JSON(&tokens); err != nil {
		return nil, err
	}
	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	return &tokens, nil
}

// BearerHeader builds the Authorization value for an OAuth access token.
func BearerHeader(accessToken string) string {
	return "Bearer " + accessToken
}

// BasicHeader builds the Authorization value from a connector's BasicAuth output.
func BasicHeader(encoded string) string {
	return "Basic " + encoded
}
