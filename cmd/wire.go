package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bnema/giveaway-cli/internal/adapters/proximity/beacon"
	"github.com/bnema/giveaway-cli/internal/adapters/proximity/simulated"
	"github.com/bnema/giveaway-cli/internal/adapters/remote/gifticon"
	"github.com/bnema/giveaway-cli/internal/adapters/render/radar"
	tomlrepo "github.com/bnema/giveaway-cli/internal/adapters/repo/toml"
	chainstore "github.com/bnema/giveaway-cli/internal/adapters/secrets/chain"
	"github.com/bnema/giveaway-cli/internal/application"
	"github.com/bnema/giveaway-cli/internal/config"
	"github.com/bnema/giveaway-cli/internal/domain"
	"github.com/bnema/giveaway-cli/internal/layout"
	"github.com/bnema/giveaway-cli/internal/logging"
	"github.com/bnema/giveaway-cli/internal/ports"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var errAPINotConfigured = errors.New("api.base_url is not configured; set it in ~/.giveaway/config.toml or GIVEAWAY_API_BASE_URL")

type app struct {
	cfg           config.Config
	logger        *zap.Logger
	secretStore   *chainstore.Store
	history       *tomlrepo.Repository
	radarRenderer func(domain.SessionState, radar.RenderOptions) (string, error)
	// api is nil until api.base_url is configured.
	api *gifticon.Client
}

func wireApp() (*app, error) {
	homeDir, err := config.DefaultHomeDir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	cfg, err := config.Load(v, homeDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("wire logger: %w", err)
	}

	repo, err := tomlrepo.NewRepository(v)
	if err != nil {
		return nil, fmt.Errorf("wire history repository: %w", err)
	}

	secretStore := chainstore.NewEnvFirstWithFileFallback(cfg.Secrets.Dir)

	a := &app{
		cfg:           cfg,
		logger:        logger,
		secretStore:   secretStore,
		history:       repo,
		radarRenderer: radar.Render,
	}

	if cfg.API.BaseURL != "" {
		client, err := gifticon.NewClient(gifticon.Options{
			BaseURL:        cfg.API.BaseURL,
			Tokens:         gifticon.SecretTokenSource{Store: secretStore, Key: cfg.API.TokenRef},
			RequestTimeout: cfg.API.Timeout,
			Logger:         logger.Named("api"),
		})
		if err != nil {
			return nil, fmt.Errorf("wire gifticon client: %w", err)
		}
		a.api = client
	}

	return a, nil
}

func (a *app) requireAPI() (*gifticon.Client, error) {
	if a.api == nil {
		return nil, errAPINotConfigured
	}
	return a.api, nil
}

type sessionOptions struct {
	in        io.Reader
	prompt    io.Writer
	assumeYes bool
	withAPI   bool
	preload   bool
}

type session struct {
	controller *application.SessionController
	catalog    *application.Catalog
	transport  ports.ProximityTransport
	logger     *zap.Logger
}

// close tears the controller down and releases transport resources such as
// the beacon socket.
func (s *session) close(ctx context.Context) {
	s.controller.Close(ctx)
	closeTransport(s.transport, s.logger)
}

func closeTransport(transport ports.ProximityTransport, logger *zap.Logger) {
	closer, ok := transport.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn("close proximity transport", zap.Error(err))
	}
}

// newSession wires a controller to a fresh transport. Callers own the
// returned session and must close it.
func (a *app) newSession(opts sessionOptions) (*session, error) {
	var (
		transfers ports.TransferAPI
		provider  ports.GiftCatalog
	)
	if opts.withAPI {
		client, err := a.requireAPI()
		if err != nil {
			return nil, err
		}
		transfers, provider = client, client
	}

	transport := a.newTransport()
	catalog := application.NewCatalog(provider, a.cfg.Catalog.PageSize, a.logger.Named("catalog"))

	controller := application.NewSessionController(application.SessionDeps{
		Transport:   transport,
		Permissions: newPromptGate(opts.in, opts.prompt, a.permissionGranted(opts.assumeYes)),
		Transfers:   transfers,
		Catalog:     catalog,
		History:     a.history,
		Logger:      a.logger.Named("session"),
	}, application.SessionConfig{
		ScanWindow:     a.cfg.Session.ScanWindow,
		DragThreshold:  a.cfg.Session.DragThreshold,
		MaxPeers:       a.cfg.Session.MaxPeers,
		Screen:         a.screen(),
		Layout:         layout.DefaultConfig(),
		PreloadCatalog: opts.preload,
	})

	return &session{controller: controller, catalog: catalog, transport: transport, logger: a.logger}, nil
}

func (a *app) newTransport() ports.ProximityTransport {
	proximity := a.cfg.Proximity
	logger := a.logger.Named("proximity")

	if proximity.Transport == config.TransportSimulated {
		return simulated.NewTransport(simulated.Options{
			Peers:  simulatedPeers(proximity.SimulatedPeers),
			Delay:  proximity.SimulatedDelay,
			Logger: logger,
		})
	}

	return beacon.NewTransport(beacon.Config{
		ListenAddr:    proximity.ListenAddr,
		BroadcastAddr: proximity.BroadcastAddr,
		Interval:      proximity.Interval,
		Self: domain.Peer{
			DisplayName:   proximity.DeviceName,
			TransferToken: proximity.TransferToken,
		},
		Logger: logger,
	})
}

// permissionGranted skips the prompt for the simulated transport, which never
// touches the network.
func (a *app) permissionGranted(assumeYes bool) bool {
	return assumeYes || a.cfg.Proximity.Transport == config.TransportSimulated
}

func (a *app) screen() layout.Bounds {
	return layout.Bounds{Width: a.cfg.Session.ScreenWidth, Height: a.cfg.Session.ScreenHeight}
}

func (a *app) renderOptions() radar.RenderOptions {
	return radar.RenderOptions{Screen: a.screen()}
}

var simulatedNames = []string{"Mina", "Joon", "Hana", "Seo", "Tae"}

// simulatedPeers alternates named and unnamed peers so both label paths show.
func simulatedPeers(n int) []domain.Peer {
	peers := make([]domain.Peer, 0, n)
	for i := 0; i < n; i++ {
		peer := domain.Peer{
			ID:            domain.PeerID(fmt.Sprintf("sim-%d", i+1)),
			TransferToken: fmt.Sprintf("sim-token-%d", i+1),
		}
		if i%2 == 0 {
			peer.DisplayName = simulatedNames[(i/2)%len(simulatedNames)]
		}
		peers = append(peers, peer)
	}
	return peers
}
