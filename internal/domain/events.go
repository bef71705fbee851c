package domain

// FeedEvent es el evento normalizado que producen los feed adapters.
// Reemplaza el fan-out de callbacks por un canal único: los dos feeds corren
// concurrentes a nivel de transporte pero sus salidas se mergean en un solo
// dispatcher, que es el único que muta los stores (sin locks).
type FeedEvent interface {
	feedEvent()
}

// TickEvent es una ejecución del feed spot de crypto.
type TickEvent struct {
	Tick PriceTick
}

// BookEvent es un snapshot completo de orderbook del feed de predicción.
// Reemplaza el book anterior del token entero.
type BookEvent struct {
	Book OrderBook
}

// PriceChangeEvent es un cambio puntual de precio de un token del mercado
// de predicción, ya normalizado a probabilidad [0,1].
type PriceChangeEvent struct {
	TokenID     string
	Price       float64
	TimestampMs int64
}

// FeedFatalEvent señala que un feed agotó sus reintentos de reconexión.
// Es terminal para ese feed; el dispatcher decide si el proceso sigue.
type FeedFatalEvent struct {
	Feed string
	Err  error
}

func (TickEvent) feedEvent()        {}
func (BookEvent) feedEvent()        {}
func (PriceChangeEvent) feedEvent() {}
func (FeedFatalEvent) feedEvent()   {}
