package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/price-tracker/internal/models"
)

func TestCheckerCachesSuccess(t *testing.T) {
	amazon := newFakeScraper(models.SiteAmazon)
	amazon.script(headphones.URL, success(models.SiteAmazon, headphones.URL, 248.00))

	c := NewChecker(factoryFor(amazon), time.Minute, testLogger())
	defer c.Close()

	first, err := c.Check(context.Background(), models.SiteAmazon, headphones.URL)
	require.NoError(t, err)
	assert.True(t, first.Success)

	second, err := c.Check(context.Background(), models.SiteAmazon, headphones.URL)
	require.NoError(t, err)
	assert.Equal(t, 248.00, second.PriceValue())

	assert.Equal(t, 1, amazon.calls[headphones.URL])
	assert.Equal(t, 1, amazon.started, "the session is reused across checks")
}

func TestCheckerDoesNotCacheFailures(t *testing.T) {
	amazon := newFakeScraper(models.SiteAmazon)
	amazon.script(headphones.URL,
		models.NewFailure(models.SiteAmazon, headphones.URL, "Blocked"),
		success(models.SiteAmazon, headphones.URL, 248.00),
	)

	c := NewChecker(factoryFor(amazon), time.Minute, testLogger())

	first, err := c.Check(context.Background(), models.SiteAmazon, headphones.URL)
	require.NoError(t, err)
	assert.False(t, first.Success)

	second, err := c.Check(context.Background(), models.SiteAmazon, headphones.URL)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, 2, amazon.calls[headphones.URL])
}

func TestCheckerWithoutCache(t *testing.T) {
	amazon := newFakeScraper(models.SiteAmazon)
	amazon.script(headphones.URL, success(models.SiteAmazon, headphones.URL, 248.00))

	c := NewChecker(factoryFor(amazon), 0, testLogger())

	for i := 0; i < 3; i++ {
		_, err := c.Check(context.Background(), models.SiteAmazon, headphones.URL)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, amazon.calls[headphones.URL])
}

func TestCheckerErrors(t *testing.T) {
	walmart := newFakeScraper(models.SiteWalmart)
	walmart.startErr = errors.New("chromium not installed")

	c := NewChecker(factoryFor(walmart), time.Minute, testLogger())

	_, err := c.Check(context.Background(), models.Site("Target"), target.URL)
	assert.ErrorIs(t, err, ErrUnsupportedSite)

	_, err = c.Check(context.Background(), models.SiteWalmart, ps5.URL)
	assert.Error(t, err)
	assert.Equal(t, 1, walmart.closed)
}

func TestCheckerClose(t *testing.T) {
	amazon := newFakeScraper(models.SiteAmazon)
	walmart := newFakeScraper(models.SiteWalmart)

	c := NewChecker(factoryFor(amazon, walmart), time.Minute, testLogger())
	_, err := c.Check(context.Background(), models.SiteAmazon, headphones.URL)
	require.NoError(t, err)
	_, err = c.Check(context.Background(), models.SiteWalmart, ps5.URL)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, amazon.closed)
	assert.Equal(t, 1, walmart.closed)
}
