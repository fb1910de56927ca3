package utils

import (
	"testing"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionCookies_KeepsEveryDomainAndPath(t *testing.T) {
	raw := []*network.Cookie{
		{Name: "WC_AUTHENTICATION_1", Value: "a", Domain: "www.sainsburys.co.uk", Path: "/", HTTPOnly: true, Secure: true, SameSite: network.CookieSameSiteLax},
		{Name: "token", Value: "b", Domain: ".account.sainsburys.co.uk", Path: "/gol-ui/oauth", Expires: 1893456000},
	}

	cookies := sessionCookies(raw)

	require.Len(t, cookies, 2)
	assert.Equal(t, "WC_AUTHENTICATION_1", cookies[0].Name)
	assert.True(t, cookies[0].HTTPOnly)
	assert.Equal(t, "Lax", cookies[0].SameSite)
	assert.Equal(t, ".account.sainsburys.co.uk", cookies[1].Domain)
	assert.Equal(t, "/gol-ui/oauth", cookies[1].Path)
	assert.Equal(t, float64(1893456000), cookies[1].Expires)
	assert.Empty(t, cookies[1].SameSite)
}

func TestSessionCookies_Empty(t *testing.T) {
	assert.Empty(t, sessionCookies(nil))
}
