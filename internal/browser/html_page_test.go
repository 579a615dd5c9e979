package browser

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLPageFindFirst(t *testing.T) {
	page, err := NewHTMLPage(`<html><body>
		<span class="a-price"><span class="a-offscreen">$1,299.99</span></span>
		<span class="a-price"><span class="a-offscreen">$5.00</span></span>
	</body></html>`)
	require.NoError(t, err)

	el, err := page.FindFirst(".a-price .a-offscreen")
	require.NoError(t, err)
	require.NotNil(t, el)

	text, err := el.Text()
	require.NoError(t, err)
	assert.Equal(t, "$1,299.99", text)

	missing, err := page.FindFirst("#price_inside_buybox")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestHTMLPageNavigate(t *testing.T) {
	page, err := NewHTMLPage(`<html></html>`)
	require.NoError(t, err)

	status, err := page.Navigate(context.Background(), "https://www.walmart.com/ip/1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "https://www.walmart.com/ip/1", page.CurrentURL())

	page.WithStatus(http.StatusServiceUnavailable).RedirectURL = "https://www.walmart.com/blocked"
	status, err = page.Navigate(context.Background(), "https://www.walmart.com/ip/2", time.Second)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "https://www.walmart.com/blocked", page.CurrentURL())

	page.NavigateErr = ErrNavigationTimeout
	_, err = page.Navigate(context.Background(), "https://www.walmart.com/ip/3", time.Second)
	assert.True(t, errors.Is(err, ErrNavigationTimeout))

	assert.Len(t, page.Navigations, 3)
}

func TestHTMLPageNavigateCancelled(t *testing.T) {
	page, err := NewHTMLPage(`<html></html>`)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = page.Navigate(ctx, "https://www.amazon.com/", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, page.Navigations)
}
