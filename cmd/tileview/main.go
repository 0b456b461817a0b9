package main

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tileview/internal/cache"
	"tileview/internal/config"
	"tileview/internal/geo"
	"tileview/internal/layer"
	"tileview/internal/logger"
	"tileview/internal/provider"
	"tileview/internal/tile"
)

const renderTimeout = 60 * time.Second

// redrawListener nudges the render loop whenever the cache changes.
type redrawListener struct {
	events chan struct{}
}

func (r *redrawListener) TileCached(tile.Coordinate)   { r.nudge() }
func (r *redrawListener) TileUncached(tile.Coordinate) { r.nudge() }

func (r *redrawListener) nudge() {
	select {
	case r.events <- struct{}{}:
	default:
	}
}

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	var transport provider.Transport
	if cfg.Offline {
		transport = provider.NewStaticTransport(cfg.TileSize, cfg.TileSize)
		log.Info("Using locally generated tiles")
	} else {
		transport = provider.NewHTTPTransport(cfg.TileURL, cfg.UserAgent, nil)
		log.Info("Using tile server", zap.String("url", cfg.TileURL))
	}

	prov := provider.New(cfg.MinZoom, cfg.MaxZoom, cfg.TileSize, cfg.TileSize,
		geo.SphericalMercator{}, cfg.Attribution, transport)

	loader := cache.NewLoader(cache.NewMemoryStore(cfg.CacheTiles), cfg.FetchWorkers, log)

	mapLayer := layer.New(loader, log)
	mapLayer.Setup(prov, cfg.Width, cfg.Height)
	mapLayer.SetPadding(cfg.Padding, cfg.Padding)
	mapLayer.SetCenterGeo(geo.Coordinate{Lat: cfg.CenterLat, Lon: cfg.CenterLon}, cfg.Zoom)
	defer mapLayer.Close()

	log.Info("Rendering viewport",
		zap.Int("width", cfg.Width),
		zap.Int("height", cfg.Height),
		zap.Float64("zoom", cfg.Zoom),
		zap.Stringer("center", mapLayer.Center()),
	)

	redraw := &redrawListener{events: make(chan struct{}, 1)}
	loader.AddListener(redraw)
	defer loader.RemoveListener(redraw)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	frame := image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	deadline := time.After(renderTimeout)

	mapLayer.Draw(frame, 0, 0)

wait:
	for loader.PendingCount() > 0 {
		select {
		case <-redraw.events:
			mapLayer.Draw(frame, 0, 0)
		case <-deadline:
			log.Warn("Timed out waiting for tiles",
				zap.Int("outstanding", loader.PendingCount()))
			break wait
		case <-quit:
			log.Info("Interrupted")
			break wait
		}
	}

	// One last pass so every tile that arrived is composited.
	mapLayer.Draw(frame, 0, 0)

	out, err := os.Create(cfg.Output)
	if err != nil {
		log.Fatal("Failed to create output file", zap.Error(err))
	}
	defer out.Close()

	if err := png.Encode(out, frame); err != nil {
		log.Fatal("Failed to encode output", zap.Error(err))
	}

	log.Info("Wrote map snapshot",
		zap.String("path", cfg.Output),
		zap.String("attribution", prov.Attribution()),
	)
}
