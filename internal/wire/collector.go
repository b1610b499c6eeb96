package wire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"

	"kestrel/internal/config"
	"kestrel/internal/feed"
)

const (
	collectorWorkers = 4
	connBacklog      = 16
)

// Collector is the result collection server. It accepts connections from
// replay runners, reads result messages off them, and persists each message
// as the twap_order and pnl_and_pos file pair its header names. A fixed
// pool of workers drains the accepted connections; one connection may carry
// several messages.
type Collector struct {
	cfg config.Collector
	log zerolog.Logger

	conns chan net.Conn

	mu     sync.Mutex
	active map[net.Conn]struct{}
}

func NewCollector(cfg config.Collector, logger zerolog.Logger) *Collector {
	return &Collector{
		cfg:    cfg,
		log:    logger,
		conns:  make(chan net.Conn, connBacklog),
		active: make(map[net.Conn]struct{}),
	}
}

// Run serves until the context is cancelled, then closes the listener and
// every open connection and waits for the workers to drain.
func (c *Collector) Run(ctx context.Context) error {
	for _, dir := range []string{feed.TwapOrderDir, feed.PnlAndPosDir} {
		if err := os.MkdirAll(filepath.Join(c.cfg.OutputDir, dir), 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", c.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	c.log.Info().Str("addr", listener.Addr().String()).Msg("collector listening")

	t.Go(func() error {
		<-t.Dying()
		listener.Close()
		c.closeAll()
		return nil
	})

	for i := 0; i < collectorWorkers; i++ {
		t.Go(func() error {
			return c.worker(t)
		})
	}

	t.Go(func() error {
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-t.Dying():
					return nil
				default:
				}
				c.log.Error().Err(err).Msg("accept failed")
				continue
			}
			c.track(conn)
			select {
			case c.conns <- conn:
			case <-t.Dying():
				c.untrack(conn)
				conn.Close()
				return nil
			}
		}
	})

	return t.Wait()
}

func (c *Collector) worker(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case conn := <-c.conns:
			c.serveConn(conn)
		}
	}
}

// serveConn drains one connection: messages are read back to back until the
// peer closes or errors. Each complete message is persisted before the next
// is read, so a crash mid-stream loses at most the message in flight.
func (c *Collector) serveConn(conn net.Conn) {
	logger := c.log.With().Str("peer", conn.RemoteAddr().String()).Logger()
	defer func() {
		c.untrack(conn)
		conn.Close()
	}()

	for {
		h, pnlBuf, twapBuf, err := readMessage(conn)
		if errors.Is(err, io.EOF) {
			logger.Debug().Msg("peer closed")
			return
		}
		if err != nil {
			logger.Error().Err(err).Msg("read message failed")
			return
		}
		if err := c.persist(h, pnlBuf, twapBuf); err != nil {
			logger.Error().Err(err).Str("name", h.Name()).Msg("persist failed")
			return
		}
		logger.Info().
			Str("name", h.Name()).
			Uint32("pnl_records", h.PnlCount).
			Uint32("twap_records", h.TwapCount).
			Msg("results collected")
	}
}

// readMessage reads one framed message, returning the raw payload bytes.
// Payloads are kept opaque; they are already the exact file images.
func readMessage(r io.Reader) (Header, []byte, []byte, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Header{}, nil, nil, io.EOF
		}
		return Header{}, nil, nil, fmt.Errorf("read header: %w", err)
	}
	h := decodeHeader(hdr[:])

	pnlBuf := make([]byte, int(h.PnlCount)*feed.PnlAndPosSize)
	if _, err := io.ReadFull(r, pnlBuf); err != nil {
		return Header{}, nil, nil, fmt.Errorf("read pnl payload: %w", err)
	}
	twapBuf := make([]byte, int(h.TwapCount)*feed.TwapOrderSize)
	if _, err := io.ReadFull(r, twapBuf); err != nil {
		return Header{}, nil, nil, fmt.Errorf("read twap payload: %w", err)
	}
	return h, pnlBuf, twapBuf, nil
}

func (c *Collector) persist(h Header, pnlBuf, twapBuf []byte) error {
	name := h.Name()
	if err := os.WriteFile(filepath.Join(c.cfg.OutputDir, feed.TwapOrderDir, name), twapBuf, 0o644); err != nil {
		return fmt.Errorf("write twap file: %w", err)
	}
	if err := os.WriteFile(filepath.Join(c.cfg.OutputDir, feed.PnlAndPosDir, name), pnlBuf, 0o644); err != nil {
		return fmt.Errorf("write pnl file: %w", err)
	}
	return nil
}

func (c *Collector) track(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[conn] = struct{}{}
}

func (c *Collector) untrack(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, conn)
}

func (c *Collector) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for conn := range c.active {
		conn.Close()
	}
}
