package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-wsnet/pkg/config"
	"github.com/ZentaChain/zentalk-wsnet/pkg/crypto"
	"github.com/ZentaChain/zentalk-wsnet/pkg/logging"
	"github.com/ZentaChain/zentalk-wsnet/pkg/network"
	"github.com/ZentaChain/zentalk-wsnet/pkg/storage"
)

var (
	// Global flags
	cfgFile  string
	logLevel string
	nodeAddr string
)

var rootCmd = &cobra.Command{
	Use:           "wsnet-client",
	Short:         "Websocket transport client: DHT, peer messages and envelopes",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "wsnet.toml", "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override Logging.Level")
	rootCmd.PersistentFlags().StringVar(&nodeAddr, "node", "", "transport node to use instead of Transport.Nodes")
}

// loadConfig reads the config file and applies flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if nodeAddr != "" {
		cfg.Transport.Nodes = []string{nodeAddr}
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
}

func openDB(cfg *config.Config) (*storage.DB, error) {
	return storage.Open(cfg.Storage.DatabasePath)
}

// session is a registered transport client and what it was built from
type session struct {
	cfg    *config.Config
	log    *zap.Logger
	keys   *crypto.KeyPair
	client *network.Client
	pool   *network.NodePool
}

func newSession(cfg *config.Config, opts ...network.Option) (*session, error) {
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	keys, err := crypto.LoadKeyFromFile(cfg.Account.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load key: %w", err)
	}
	pool, err := network.NewNodePool(cfg.Transport.Nodes...)
	if err != nil {
		return nil, err
	}

	opts = append([]network.Option{
		network.WithLogger(logging.Named(log, "network")),
		network.WithConfig(network.Config{
			ConnectTimeout:  cfg.Transport.ConnectTimeout(),
			RequestTimeout:  cfg.Transport.RequestTimeout(),
			MonitorInterval: cfg.Transport.MonitorInterval(),
			Path:            cfg.Transport.Path,
		}),
	}, opts...)

	client := network.NewClient(network.NewIdentity(cfg.Account.Name, keys), opts...)
	return &session{cfg: cfg, log: log, keys: keys, client: client, pool: pool}, nil
}

func (s *session) connect(ctx context.Context) error {
	info, err := s.pool.ConnectAny(ctx, s.client)
	if err != nil {
		return err
	}
	s.log.Sugar().Infof("Registered with %s", info.Endpoint)
	return nil
}

func (s *session) close() {
	s.client.Dispose()
	_ = s.log.Sync()
}

// connectOnce builds a session and registers it for a single command
func connectOnce(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	s, err := newSession(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Transport.ConnectTimeout()*time.Duration(len(cfg.Transport.Nodes)+1))
	defer cancel()
	if err := s.connect(ctx); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}
