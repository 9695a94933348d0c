// Package gossip implements Peer Gossip (C4): a bidirectional websocket
// channel per peer, broadcasting newly appended blocks and exchanging full
// chains to converge the cluster (spec §4.4). Grounded in the teacher's
// networking idiom of one goroutine per connection direction (a read pump
// and a write pump), adapted here from connection-per-peer instead of the
// teacher's devp2p swarm since the retrieval pack's closest transport match
// is gorilla/websocket, not devp2p (see DESIGN.md).
package gossip

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tos-network/ledgervault/internal/chainstore"
	"github.com/tos-network/ledgervault/internal/ledgercrypto"
	"github.com/tos-network/ledgervault/internal/verifier"
)

// dedupCacheBytes bounds the fastcache used to suppress re-broadcasting a
// BLOCK the hub itself just relayed (spec §5's "drop silently" backpressure
// rule, bounded here rather than unbounded).
const dedupCacheBytes = 4 << 20 // 4 MiB

// reconnectBackoff is the delay between dial attempts to a configured peer
// that is currently unreachable.
const reconnectBackoff = 5 * time.Second

// Store is the subset of chainstore.Store the gossip hub depends on.
type Store interface {
	LoadChainFromStore(ctx context.Context) ([]chainstore.Block, error)
	Append(ctx context.Context, b chainstore.Block) (chainstore.AppendOutcome, error)
	ReplaceChain(ctx context.Context, candidate []chainstore.Block) (chainstore.ReplaceOutcome, error)
	CreatorByID(ctx context.Context, creatorID string) (*chainstore.Creator, error)
}

// BlockMessage is what internal/mining passes to BroadcastBlock on a fresh
// append (spec §4.2's "On success: C4 is notified to broadcast").
type BlockMessage struct {
	Block chainstore.Block
}

// peer is one connected socket, either accepted or dialed.
type peer struct {
	addr string
	conn *websocket.Conn
	send chan envelope
}

// Hub is the process-wide C4 singleton (spec §9): constructed before the
// HTTP/P2P servers start, shut down on SIGTERM/SIGINT.
type Hub struct {
	store Store
	log   *zap.Logger

	upgrader websocket.Upgrader
	dedup    *fastcache.Cache

	mu    sync.Mutex
	peers map[string]*peer

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a Hub. The peers it dials are passed later to Start.
func New(store Store, log *zap.Logger) *Hub {
	return &Hub{
		store:    store,
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		dedup:    fastcache.New(dedupCacheBytes),
		peers:    make(map[string]*peer),
	}
}

// Start dials every configured peer in the background; peerAddrs is the
// PEERS configuration list (spec §6), host:port or ws:// endpoints. Dial
// failures retry with a fixed backoff until ctx is cancelled.
func (h *Hub) Start(ctx context.Context, peerAddrs []string) {
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	for _, addr := range peerAddrs {
		addr := addr
		h.wg.Add(1)
		go h.dialLoop(runCtx, addr)
	}
}

// Stop closes every connected socket and waits for all goroutines to exit
// (spec §4.4's shutdown contract: in-flight validations complete or are
// interrupted; append is transactional so no half-written blocks remain).
func (h *Hub) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	h.mu.Lock()
	for _, p := range h.peers {
		p.conn.Close()
	}
	h.mu.Unlock()
	h.wg.Wait()
}

// PeerCount reports the number of currently connected peers, for GET /health.
func (h *Hub) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *Hub) dialLoop(ctx context.Context, addr string) {
	defer h.wg.Done()
	wsURL := toWebsocketURL(addr)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			h.log.Warn("gossip: dial failed, retrying", zap.String("peer", addr), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectBackoff):
			}
			continue
		}
		h.log.Info("gossip: connected to peer", zap.String("peer", addr))
		h.serve(ctx, addr, conn)
	}
}

func toWebsocketURL(addr string) string {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return addr
	}
	return "ws://" + addr
}

// ServeHTTP upgrades an inbound HTTP connection to a websocket and serves it
// as an accepted peer; wired onto P2P_PORT's mux by cmd/ledgernode.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("gossip: upgrade failed", zap.Error(err))
		return
	}
	addr := remoteAddr(r)
	h.log.Info("gossip: accepted peer", zap.String("peer", addr))
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.serve(context.Background(), addr, conn)
	}()
}

func remoteAddr(r *http.Request) string {
	if u, err := url.Parse(r.RemoteAddr); err == nil && u.Host != "" {
		return u.Host
	}
	return r.RemoteAddr
}

// serve runs both pumps for one connection until it closes, registering and
// deregistering it in h.peers. On open, it sends the local chain in one
// CHAIN message (spec §4.4's "on connection open (either direction)").
func (h *Hub) serve(ctx context.Context, addr string, conn *websocket.Conn) {
	p := &peer{addr: addr, conn: conn, send: make(chan envelope, 32)}
	h.register(p)
	defer h.deregister(p)

	var pumpWG sync.WaitGroup
	pumpWG.Add(2)
	go func() { defer pumpWG.Done(); h.writePump(p) }()
	go func() { defer pumpWG.Done(); h.readPump(ctx, p) }()

	if chain, err := h.store.LoadChainFromStore(ctx); err != nil {
		h.log.Warn("gossip: failed to load chain for handshake", zap.Error(err))
	} else {
		h.sendChain(p, chain)
	}

	pumpWG.Wait()
}

func (h *Hub) register(p *peer) {
	h.mu.Lock()
	h.peers[p.addr] = p
	h.mu.Unlock()
}

func (h *Hub) deregister(p *peer) {
	h.mu.Lock()
	delete(h.peers, p.addr)
	h.mu.Unlock()
	close(p.send)
	p.conn.Close()
}

func (h *Hub) writePump(p *peer) {
	for msg := range p.send {
		p.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := p.conn.WriteJSON(msg); err != nil {
			// Gossip errors close the affected socket and remove it from
			// the peer set; they never abort local state (spec §7).
			h.log.Warn("gossip: write failed, closing socket", zap.String("peer", p.addr), zap.Error(err))
			p.conn.Close()
			return
		}
	}
}

func (h *Hub) readPump(ctx context.Context, p *peer) {
	for {
		var env envelope
		if err := p.conn.ReadJSON(&env); err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) {
				h.log.Info("gossip: peer disconnected", zap.String("peer", p.addr), zap.Error(err))
			}
			return
		}
		switch env.Type {
		case typeChain:
			h.handleChain(ctx, p, env.Chain)
		case typeBlock:
			if env.Block != nil {
				h.handleBlock(ctx, p, *env.Block)
			}
		}
	}
}

func (h *Hub) sendChain(p *peer, chain []chainstore.Block) {
	wire := make([]wireBlock, len(chain))
	for i, b := range chain {
		wire[i] = toWireBlock(b)
	}
	select {
	case p.send <- envelope{Type: typeChain, Chain: wire}:
	default:
		h.log.Warn("gossip: peer send buffer full, dropping CHAIN", zap.String("peer", p.addr))
	}
}

// handleChain implements the longest-chain rule (spec §4.4/§9): a strictly
// longer candidate that fully re-validates replaces the local chain
// atomically; equal-length or shorter candidates, or a candidate that fails
// any block's validation, are ignored.
func (h *Hub) handleChain(ctx context.Context, p *peer, wire []wireBlock) {
	candidate := make([]chainstore.Block, 0, len(wire))
	for _, w := range wire {
		b, err := fromWireBlock(w)
		if err != nil {
			h.log.Warn("gossip: malformed CHAIN block, ignoring chain", zap.String("peer", p.addr), zap.Error(err))
			return
		}
		candidate = append(candidate, b)
	}

	if !h.validateCandidate(ctx, candidate) {
		h.log.Info("gossip: candidate chain failed validation, ignoring", zap.String("peer", p.addr), zap.Int("length", len(candidate)))
		return
	}

	outcome, err := h.store.ReplaceChain(ctx, candidate)
	if err != nil {
		h.log.Warn("gossip: replace_chain error", zap.Error(err))
		return
	}
	if outcome == chainstore.ReplaceAccepted {
		h.log.Info("gossip: chain replaced", zap.String("peer", p.addr), zap.Int("length", len(candidate)))
	}
}

// validateCandidate re-validates every block before the transactional swap
// (SPEC_FULL.md's resolution of the §9 open question on replace_chain).
func (h *Hub) validateCandidate(ctx context.Context, candidate []chainstore.Block) bool {
	var prevHash *string
	for i, b := range candidate {
		if b.BlockNumber != int64(i+1) {
			return false
		}
		creator, err := h.store.CreatorByID(ctx, b.CreatorID)
		if err != nil || creator == nil {
			return false
		}
		pub, err := ledgercrypto.ParseRSAPublicKeyPEM(creator.PublicKey)
		if err != nil {
			return false
		}
		if ok, _ := verifier.ValidateBlock(b, prevHash, pub); !ok {
			return false
		}
		h := b.BlockHash
		prevHash = &h
	}
	return true
}

// BroadcastBlock sends a BLOCK message to every connected peer, skipping a
// block already broadcast recently (dedup cache) and marking it as seen.
func (h *Hub) BroadcastBlock(msg BlockMessage) {
	h.broadcastBlock(msg.Block, "")
}

// broadcastBlock is shared by BroadcastBlock (local append) and
// handleBlock's re-broadcast path; excludeAddr avoids bouncing the message
// straight back to the peer it arrived from.
func (h *Hub) broadcastBlock(b chainstore.Block, excludeAddr string) {
	key := []byte(b.BlockHash)
	if h.dedup.Has(key) {
		return
	}
	h.dedup.Set(key, []byte{1})

	env := envelope{Type: typeBlock, Block: &[]wireBlock{toWireBlock(b)}[0]}
	h.mu.Lock()
	defer h.mu.Unlock()
	for addr, p := range h.peers {
		if addr == excludeAddr {
			continue
		}
		select {
		case p.send <- env:
		default:
			// No queue; BLOCK messages are dropped silently if a socket's
			// buffer is full (spec §5 backpressure, implementation choice).
			h.log.Warn("gossip: peer send buffer full, dropping BLOCK", zap.String("peer", addr))
		}
	}
}

// handleBlock implements spec §4.4's BLOCK handling: append through C1; if
// freshly inserted, re-broadcast to all other known peers.
func (h *Hub) handleBlock(ctx context.Context, p *peer, w wireBlock) {
	b, err := fromWireBlock(w)
	if err != nil {
		h.log.Warn("gossip: malformed BLOCK, ignoring", zap.String("peer", p.addr), zap.Error(err))
		return
	}
	outcome, err := h.store.Append(ctx, b)
	if err != nil {
		h.log.Warn("gossip: append failed", zap.Error(err))
		return
	}
	if outcome == chainstore.AppendInserted {
		h.log.Info("gossip: appended block from peer",
			zap.String("peer", p.addr), zap.Int64("block_number", b.BlockNumber))
		h.broadcastBlock(b, p.addr)
	}
}

