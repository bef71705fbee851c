package stream

// conn.go — conexión websocket resiliente compartida por los dos feeds.
//
// Máquina de estados: Idle → Connecting → Open → Closing → Idle, con un
// flag ortogonal shouldReconnect. Ante cualquier cierre o error de
// transporte con shouldReconnect activo, se reprograma la conexión con
// backoff exponencial 1s, 2s, 4s... con tope de 30s. Tras agotar los
// intentos configurados el feed queda muerto y se notifica OnFatal: eso es
// terminal, no se reintenta más.
//
// Las suscripciones se recuerdan por canal y se reenvían completas tras
// cada reconexión, así el estado downstream converge después de cualquier
// corte.

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
)

// State es el estado de la conexión.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "idle"
	}
}

const (
	defaultHeartbeat   = 30 * time.Second
	defaultMaxAttempts = 10
	reconnectMinDelay  = time.Second
	reconnectMaxDelay  = 30 * time.Second
	dialTimeout        = 10 * time.Second
	writeWait          = 5 * time.Second
)

// Config parametriza una conexión de feed.
type Config struct {
	// Name identifica el feed en logs y eventos ("binance", "polymarket").
	Name string
	// URL es el endpoint websocket completo.
	URL string
	// HeartbeatInterval entre pings. Default 30s.
	HeartbeatInterval time.Duration
	// MaxReconnectAttempts antes de declarar el feed muerto. Default 10.
	MaxReconnectAttempts int
	// PingPayload, si no está vacío, se envía como mensaje de texto en vez
	// del ping de protocolo (el CLOB de Polymarket usa "PING" aplicativo).
	PingPayload []byte
	// OnMessage recibe cada mensaje crudo. Nunca debe tumbar el read loop:
	// un panic del handler se contiene y el mensaje se descarta.
	OnMessage func(msg []byte)
	// OnFatal se invoca una sola vez cuando se agotan los reintentos.
	OnFatal func(err error)
}

// Conn es una conexión websocket con reconexión automática y heartbeat.
type Conn struct {
	cfg Config

	mu              sync.Mutex
	state           State
	shouldReconnect bool
	ws              *websocket.Conn
	attempts        int
	backoff         *backoff.Backoff
	subs            map[string][]byte // canal → payload de suscripción
	subOrder        []string          // orden de replay estable
	heartbeatStop   chan struct{}
	reconnectTimer  *time.Timer

	writeMu sync.Mutex
}

// New crea la conexión sin abrirla. Llamar Connect para arrancar.
func New(cfg Config) *Conn {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeat
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = defaultMaxAttempts
	}
	return &Conn{
		cfg: cfg,
		backoff: &backoff.Backoff{
			Min:    reconnectMinDelay,
			Max:    reconnectMaxDelay,
			Factor: 2,
		},
		subs: make(map[string][]byte),
	}
}

// State devuelve el estado actual.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect abre la conexión. Es idempotente: si ya está Open o Connecting
// no hace nada. Un fallo de dial devuelve el error y además programa el
// primer reintento, igual que un corte en caliente.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.shouldReconnect = true
	c.mu.Unlock()

	return c.dial(ctx)
}

// Disconnect cierra la conexión y suprime cualquier reconexión automática:
// cancela el timer de reconexión pendiente y el heartbeat.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.shouldReconnect = false
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.stopHeartbeatLocked()
	ws := c.ws
	c.ws = nil
	c.state = StateClosing
	c.mu.Unlock()

	if ws != nil {
		_ = ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		_ = ws.Close()
	}

	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
	slog.Info("stream disconnected", "feed", c.cfg.Name)
}

// Subscribe registra el payload de suscripción de un canal y lo envía si la
// conexión está abierta. El payload queda memorizado y se reenvía tras cada
// reconexión.
func (c *Conn) Subscribe(channel string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("stream.Subscribe: marshal %q: %w", channel, err)
	}

	c.mu.Lock()
	if _, seen := c.subs[channel]; !seen {
		c.subOrder = append(c.subOrder, channel)
	}
	c.subs[channel] = b
	open := c.state == StateOpen
	c.mu.Unlock()

	if !open {
		return nil
	}
	return c.write(websocket.TextMessage, b)
}

// dial abre el transporte y arranca read loop y heartbeat.
func (c *Conn) dial(ctx context.Context) error {
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	ws, _, err := websocket.DefaultDialer.DialContext(dctx, c.cfg.URL, nil)
	if err != nil {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		c.scheduleReconnect(err)
		return fmt.Errorf("stream.dial: %s: %w", c.cfg.Name, err)
	}

	// Un ping entrante se contesta con pong inmediatamente.
	ws.SetPingHandler(func(data string) error {
		return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	hbStop := make(chan struct{})
	c.mu.Lock()
	if !c.shouldReconnect {
		// Disconnect ganó la carrera mientras el dial estaba en vuelo: la
		// conexión recién abierta se descarta sin arrancar goroutines.
		c.state = StateIdle
		c.mu.Unlock()
		_ = ws.Close()
		slog.Debug("stream: dial completed after disconnect, dropping connection", "feed", c.cfg.Name)
		return nil
	}
	c.ws = ws
	c.state = StateOpen
	c.attempts = 0
	c.backoff.Reset()
	c.heartbeatStop = hbStop
	c.mu.Unlock()

	slog.Info("stream connected", "feed", c.cfg.Name, "url", c.cfg.URL)
	c.replaySubscriptions()

	go c.readLoop(ws)
	go c.heartbeat(ws, hbStop)
	return nil
}

// readLoop lee hasta que el transporte muere y delega el cierre.
func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			c.handleClose(err)
			return
		}
		c.dispatch(msg)
	}
}

// dispatch entrega un mensaje al handler conteniendo cualquier panic:
// un mensaje malo nunca para el stream.
func (c *Conn) dispatch(msg []byte) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("stream: message handler panicked, message dropped",
				"feed", c.cfg.Name,
				"panic", r,
			)
		}
	}()
	if c.cfg.OnMessage != nil {
		c.cfg.OnMessage(msg)
	}
}

// heartbeat envía un ping cada intervalo hasta que stop se cierra.
// Si el write falla no hace nada más: el read loop verá el corte.
func (c *Conn) heartbeat(ws *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			var err error
			if len(c.cfg.PingPayload) > 0 {
				err = c.write(websocket.TextMessage, c.cfg.PingPayload)
			} else {
				err = ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			}
			if err != nil {
				slog.Debug("stream: heartbeat write failed", "feed", c.cfg.Name, "err", err)
				return
			}
		}
	}
}

// handleClose procesa un corte del transporte no solicitado.
func (c *Conn) handleClose(cause error) {
	c.mu.Lock()
	if c.state == StateClosing || !c.shouldReconnect {
		// Disconnect en curso: no hay nada que reprogramar.
		c.mu.Unlock()
		return
	}
	c.stopHeartbeatLocked()
	if c.ws != nil {
		_ = c.ws.Close()
		c.ws = nil
	}
	c.state = StateIdle
	c.mu.Unlock()

	c.scheduleReconnect(cause)
}

// scheduleReconnect incrementa el contador de intentos y programa el
// siguiente dial con backoff, o declara el feed muerto si se agotaron.
func (c *Conn) scheduleReconnect(cause error) {
	c.mu.Lock()
	if !c.shouldReconnect {
		c.mu.Unlock()
		return
	}
	c.attempts++
	if c.attempts > c.cfg.MaxReconnectAttempts {
		c.shouldReconnect = false
		attempts := c.attempts - 1
		c.mu.Unlock()

		err := fmt.Errorf("stream: %s: max reconnect attempts reached (%d): %w",
			c.cfg.Name, attempts, cause)
		slog.Error("stream: giving up on feed", "feed", c.cfg.Name, "attempts", attempts, "err", cause)
		if c.cfg.OnFatal != nil {
			c.cfg.OnFatal(err)
		}
		return
	}

	delay := c.backoff.Duration()
	attempt := c.attempts
	c.reconnectTimer = time.AfterFunc(delay, c.reconnect)
	c.mu.Unlock()

	slog.Warn("stream: disconnected, retrying",
		"feed", c.cfg.Name,
		"attempt", attempt,
		"max", c.cfg.MaxReconnectAttempts,
		"delay", delay,
		"err", cause,
	)
}

// reconnect es el callback del timer de backoff.
func (c *Conn) reconnect() {
	c.mu.Lock()
	if !c.shouldReconnect || c.state != StateIdle {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.reconnectTimer = nil
	c.mu.Unlock()

	// dial reprograma el siguiente intento si vuelve a fallar.
	_ = c.dial(context.Background())
}

// replaySubscriptions reenvía todas las suscripciones memorizadas, en el
// orden en que se registraron.
func (c *Conn) replaySubscriptions() {
	c.mu.Lock()
	payloads := make([][]byte, 0, len(c.subOrder))
	for _, ch := range c.subOrder {
		payloads = append(payloads, c.subs[ch])
	}
	c.mu.Unlock()

	for _, p := range payloads {
		if err := c.write(websocket.TextMessage, p); err != nil {
			slog.Warn("stream: subscription replay failed", "feed", c.cfg.Name, "err", err)
			return
		}
	}
	if len(payloads) > 0 {
		slog.Debug("stream: subscriptions replayed", "feed", c.cfg.Name, "count", len(payloads))
	}
}

// write serializa las escrituras al socket con deadline.
func (c *Conn) write(messageType int, data []byte) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return fmt.Errorf("stream.write: %s: not connected", c.cfg.Name)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(messageType, data)
}

// stopHeartbeatLocked cancela el heartbeat. Requiere c.mu tomado.
func (c *Conn) stopHeartbeatLocked() {
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
}
