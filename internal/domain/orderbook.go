package domain

import "strconv"

// OrderBook es el snapshot completo del libro de un token. Se reemplaza
// entero en cada mensaje "book" del feed — no hay merge incremental.
type OrderBook struct {
	TokenID     string
	Bids        []BookEntry // ordenados mayor a menor precio
	Asks        []BookEntry // ordenados menor a mayor precio
	TimestampMs int64
}

// BookEntry es un nivel de precio en el orderbook.
type BookEntry struct {
	Price float64
	Size  float64
}

// BestBid devuelve el mejor precio de compra (mayor bid).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk devuelve el mejor precio de venta (menor ask).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// Midpoint devuelve el punto medio entre best bid y best ask.
func (ob OrderBook) Midpoint() float64 {
	bid := ob.BestBid()
	ask := ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// Spread devuelve el spread del book (ask - bid).
func (ob OrderBook) Spread() float64 {
	bid := ob.BestBid()
	ask := ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return ask - bid
}

// TotalLiquidity devuelve el valor nominal del book en USDC:
// Σ(price×size) sobre bids y asks.
func (ob OrderBook) TotalLiquidity() float64 {
	var total float64
	for _, b := range ob.Bids {
		total += b.Price * b.Size
	}
	for _, a := range ob.Asks {
		total += a.Price * a.Size
	}
	return total
}

// ParsePrice convierte un string de precio a float64.
// Usado en el mapping de los feeds.
func ParsePrice(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
