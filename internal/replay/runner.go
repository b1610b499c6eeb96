package replay

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kestrel/internal/config"
	"kestrel/internal/engine"
	"kestrel/internal/feed"
	"kestrel/internal/shard"
	"kestrel/internal/wire"
)

// Runner replays one dataset through every configured session, writes the
// result files, and optionally ships them to the collection server.
type Runner struct {
	cfg config.Config
	log zerolog.Logger
}

func NewRunner(cfg config.Config, logger zerolog.Logger) *Runner {
	return &Runner{cfg: cfg, log: logger}
}

func (r *Runner) Run(ctx context.Context) error {
	runID := uuid.New()
	logger := r.log.With().Stringer("run", runID).Str("dataset", r.cfg.Replay.Dataset).Logger()

	dataDir := r.cfg.Replay.DataDir
	dataset := r.cfg.Replay.Dataset
	orders, err := feed.ReadOrderLogs(filepath.Join(dataDir, feed.OrderLogDir, dataset))
	if err != nil {
		return fmt.Errorf("read order log: %w", err)
	}
	alphas, err := feed.ReadAlphas(filepath.Join(dataDir, feed.AlphaDir, dataset))
	if err != nil {
		return fmt.Errorf("read alphas: %w", err)
	}
	prev, err := feed.ReadPrevTradeInfos(filepath.Join(dataDir, feed.PrevTradeInfoDir, dataset))
	if err != nil {
		return fmt.Errorf("read previous trade info: %w", err)
	}
	logger.Info().
		Int("orders", len(orders)).
		Int("alphas", len(alphas)).
		Int("instruments", len(prev)).
		Msg("dataset loaded")

	for _, dir := range []string{feed.TwapOrderDir, feed.PnlAndPosDir} {
		if err := os.MkdirAll(filepath.Join(r.cfg.Replay.OutputDir, dir), 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	for _, spec := range r.cfg.Replay.Sessions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.runSession(ctx, spec, orders, alphas, prev, logger); err != nil {
			return fmt.Errorf("session %v: %w", spec, err)
		}
	}
	return nil
}

func (r *Runner) runSession(ctx context.Context, spec config.SessionSpec, orders []feed.OrderLog, alphas []feed.Alpha, prev []feed.PrevTradeInfo, logger zerolog.Logger) error {
	market, closeMarket := r.newMarket()
	session := NewSession(spec, market, logger)
	result, err := session.Run(orders, alphas, prev)
	if cerr := closeMarket(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	name := fmt.Sprintf("%s_%d_%d", r.cfg.Replay.Dataset, spec.Slices, spec.IntervalSec)
	twapPath := filepath.Join(r.cfg.Replay.OutputDir, feed.TwapOrderDir, name)
	pnlPath := filepath.Join(r.cfg.Replay.OutputDir, feed.PnlAndPosDir, name)
	if err := feed.WriteTwapOrders(twapPath, result.Twap); err != nil {
		return err
	}
	if err := feed.WritePnlAndPos(pnlPath, result.Pnl); err != nil {
		return err
	}
	logger.Info().
		Str("session", spec.String()).
		Int("twap_orders", len(result.Twap)).
		Int("instruments", len(result.Pnl)).
		Msg("session complete")

	if addr := r.cfg.Replay.CollectorAddr; addr != "" {
		if err := wire.Send(ctx, addr, name, result.Pnl, result.Twap); err != nil {
			return fmt.Errorf("ship results: %w", err)
		}
		logger.Info().Str("collector", addr).Str("name", name).Msg("results shipped")
	}
	return nil
}

// newMarket builds a fresh market per session so no state leaks between
// passes. The sharded market needs an explicit close; the single-threaded
// one does not.
func (r *Runner) newMarket() (Market, func() error) {
	if r.cfg.Replay.Shards > 1 {
		m := shard.New(r.cfg.Replay.Shards)
		return m, m.Close
	}
	return Wrap(engine.NewMarket()), func() error { return nil }
}
