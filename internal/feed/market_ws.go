// Package feed streams real-time book updates from the Polymarket CLOB
// websocket into the shared snapshot cache.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quarterhedge/updownbot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// tokenRef locates one outcome token inside its market.
type tokenRef struct {
	marketID string
	slot     domain.OutcomeSlot
}

// MarketWS is a websocket client for the CLOB market data feed. It tracks
// the outcome tokens of the markets under watch, folds the per-token book
// messages into per-market snapshots, and writes each folded snapshot to
// the snapshot cache.
type MarketWS struct {
	wsURL string
	cache domain.SnapshotCache
	log   *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	tokens map[string]tokenRef        // token ID -> market/slot
	quotes map[string][2]domain.Quote // market ID -> folded top of book
	seen   map[string][2]bool         // market ID -> which slots have data

	done chan struct{}
}

// NewMarketWS creates a feed client for the given websocket endpoint,
// e.g. "wss://ws-subscriptions-clob.polymarket.com/ws/market".
func NewMarketWS(wsURL string, cache domain.SnapshotCache, logger *slog.Logger) *MarketWS {
	return &MarketWS{
		wsURL:  wsURL,
		cache:  cache,
		log:    logger.With(slog.String("component", "feed")),
		tokens: make(map[string]tokenRef),
		quotes: make(map[string][2]domain.Quote),
		seen:   make(map[string][2]bool),
		done:   make(chan struct{}),
	}
}

// Connect establishes the websocket connection and starts the read and ping
// loops.
func (f *MarketWS) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("feed: client closed")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}

	f.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go f.readLoop(conn)
	go f.pingLoop(conn)

	// Restore the current subscription set after a reconnect.
	if len(f.tokens) > 0 {
		if err := f.sendSubscribe(conn, f.tokenIDs()); err != nil {
			return fmt.Errorf("feed: restore subscriptions: %w", err)
		}
	}

	return nil
}

// Track replaces the watched market set. Tokens of newly tracked markets are
// subscribed; state for markets no longer in the set is dropped.
func (f *MarketWS) Track(markets []domain.Market) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := make(map[string]tokenRef, len(markets)*2)
	var added []string
	for _, m := range markets {
		for slot := domain.SlotPrimary; slot <= domain.SlotSecondary; slot++ {
			id := m.TokenIDs[slot]
			if id == "" {
				continue
			}
			next[id] = tokenRef{marketID: m.ID, slot: slot}
			if _, ok := f.tokens[id]; !ok {
				added = append(added, id)
			}
		}
	}

	keep := make(map[string]bool, len(markets))
	for _, m := range markets {
		keep[m.ID] = true
	}
	for id := range f.quotes {
		if !keep[id] {
			delete(f.quotes, id)
			delete(f.seen, id)
		}
	}

	f.tokens = next

	if len(added) == 0 || f.conn == nil {
		return nil
	}
	if err := f.sendSubscribe(f.conn, added); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	return nil
}

// Close shuts down the connection and stops the read loop.
func (f *MarketWS) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}

	f.closed = true
	close(f.done)

	if f.conn != nil {
		_ = f.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return f.conn.Close()
	}

	return nil
}

// tokenIDs returns the currently tracked token IDs. Caller must hold f.mu.
func (f *MarketWS) tokenIDs() []string {
	ids := make([]string, 0, len(f.tokens))
	for id := range f.tokens {
		ids = append(ids, id)
	}
	return ids
}

// sendSubscribe sends a book-channel subscribe command. Caller must hold f.mu.
func (f *MarketWS) sendSubscribe(conn *websocket.Conn, assetIDs []string) error {
	cmd := struct {
		Type    string   `json:"type"`
		Channel string   `json:"channel"`
		Assets  []string `json:"assets_ids"`
	}{
		Type:    "subscribe",
		Channel: "book",
		Assets:  assetIDs,
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads messages until the connection drops, then reconnects with
// exponential backoff.
func (f *MarketWS) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		select {
		case <-f.done:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-f.done:
				return
			default:
			}
			f.log.Warn("connection lost, reconnecting", slog.Any("error", err))
			f.reconnect()
			return
		}

		f.handleMessage(message)
	}
}

// pingLoop sends periodic pings to keep the connection alive.
func (f *MarketWS) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reconnect re-establishes the connection, blocking until successful or the
// client is closed.
func (f *MarketWS) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-f.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := f.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// bookMessage is a full book snapshot for one outcome token. Prices and
// sizes arrive as decimal strings.
type bookMessage struct {
	EventType string      `json:"event_type"`
	AssetID   string      `json:"asset_id"`
	Timestamp string      `json:"timestamp"`
	Bids      []bookLevel `json:"bids"`
	Asks      []bookLevel `json:"asks"`
}

type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// handleMessage parses a raw message and, for book events on tracked tokens,
// folds the update into the market snapshot and writes it to the cache.
func (f *MarketWS) handleMessage(raw []byte) {
	var envelope struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}
	if envelope.EventType != "book" {
		return
	}

	var msg bookMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	snap, ok := f.fold(msg)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.cache.Set(ctx, snap); err != nil {
		f.log.Warn("cache write failed",
			slog.String("market_id", snap.MarketID),
			slog.Any("error", err))
	}
}

// fold merges a per-token book message into its market's quote pair. ok is
// false until both outcome tokens of the market have been observed, so a
// half-formed snapshot never reaches the cache.
func (f *MarketWS) fold(msg bookMessage) (domain.BookSnapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ref, tracked := f.tokens[msg.AssetID]
	if !tracked {
		return domain.BookSnapshot{}, false
	}

	quote := quoteFromLevels(msg.Bids, msg.Asks)

	quotes := f.quotes[ref.marketID]
	quotes[ref.slot] = quote
	f.quotes[ref.marketID] = quotes

	seen := f.seen[ref.marketID]
	seen[ref.slot] = true
	f.seen[ref.marketID] = seen

	if !seen[domain.SlotPrimary] || !seen[domain.SlotSecondary] {
		return domain.BookSnapshot{}, false
	}

	return domain.BookSnapshot{
		MarketID: ref.marketID,
		Quotes:   quotes,
		Observed: parseMillis(msg.Timestamp),
	}, true
}

// quoteFromLevels extracts the top of book. Bids scan for the highest price,
// asks for the lowest; level order on the wire is not guaranteed.
func quoteFromLevels(bids, asks []bookLevel) domain.Quote {
	var q domain.Quote
	for _, lvl := range bids {
		price, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil || price <= 0 {
			continue
		}
		if price > q.BestBid {
			size, _ := strconv.ParseFloat(lvl.Size, 64)
			q.BestBid, q.BidSize = price, size
		}
	}
	for _, lvl := range asks {
		price, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil || price <= 0 {
			continue
		}
		if q.BestAsk == 0 || price < q.BestAsk {
			size, _ := strconv.ParseFloat(lvl.Size, 64)
			q.BestAsk, q.AskSize = price, size
		}
	}
	return q
}

// parseMillis converts a millisecond epoch string to a time, falling back to
// now when the field is absent or malformed.
func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}
