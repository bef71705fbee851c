package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/lagbot/internal/domain"
)

func TestHistoryStoreAppliesPerAsset(t *testing.T) {
	s := NewHistoryStore(domain.DefaultHistoryPoints, domain.DefaultHistoryWindow)

	s.Apply(domain.PriceTick{Asset: "BTC", Price: 100, TimestampMs: 1000})
	s.Apply(domain.PriceTick{Asset: "BTC", Price: 101, TimestampMs: 2000})
	s.Apply(domain.PriceTick{Asset: "ETH", Price: 2000, TimestampMs: 2000})

	assert.Equal(t, 2, s.Len("BTC"))
	assert.Equal(t, 1, s.Len("ETH"))
	assert.Equal(t, 0, s.Len("SOL"))

	price, ok := s.LastPrice("BTC")
	require.True(t, ok)
	assert.InDelta(t, 101, price, 1e-9)

	_, ok = s.LastPrice("SOL")
	assert.False(t, ok)

	snap := s.Snapshot("BTC")
	require.Len(t, snap, 2)
	assert.InDelta(t, 100, snap[0].Price, 1e-9)
	assert.Nil(t, s.Snapshot("SOL"))
}

func TestHistoryStoreTrimsByCount(t *testing.T) {
	s := NewHistoryStore(5, 10*time.Minute)

	for i := 0; i < 20; i++ {
		s.Apply(domain.PriceTick{Asset: "BTC", Price: 100, TimestampMs: int64(i) * 1000})
	}
	assert.Equal(t, 5, s.Len("BTC"))
}

func TestBookStoreBookRefreshesMidpoint(t *testing.T) {
	s := NewBookStore()

	s.ApplyBook(domain.OrderBook{
		TokenID: "tok-up",
		Bids:    []domain.BookEntry{{Price: 0.55, Size: 100}},
		Asks:    []domain.BookEntry{{Price: 0.57, Size: 200}},
	})

	price, ok := s.Price("tok-up")
	require.True(t, ok)
	assert.InDelta(t, 0.56, price, 1e-9)
	assert.InDelta(t, 0.55*100+0.57*200, s.Liquidity("tok-up"), 1e-9)
}

func TestBookStorePriceChangeOverridesMidpoint(t *testing.T) {
	s := NewBookStore()

	s.ApplyBook(domain.OrderBook{
		TokenID: "tok-up",
		Bids:    []domain.BookEntry{{Price: 0.55, Size: 100}},
		Asks:    []domain.BookEntry{{Price: 0.57, Size: 200}},
	})
	s.ApplyPrice("tok-up", 0.61)

	price, ok := s.Price("tok-up")
	require.True(t, ok)
	assert.InDelta(t, 0.61, price, 1e-9)
}

func TestBookStoreIgnoresNonPositivePrices(t *testing.T) {
	s := NewBookStore()

	s.ApplyPrice("tok-up", 0)
	s.ApplyPrice("tok-up", -1)

	_, ok := s.Price("tok-up")
	assert.False(t, ok)
	assert.Zero(t, s.Liquidity("tok-up"))
}
