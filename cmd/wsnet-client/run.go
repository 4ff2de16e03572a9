package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ZentaChain/zentalk-wsnet/pkg/api"
	"github.com/ZentaChain/zentalk-wsnet/pkg/logging"
	"github.com/ZentaChain/zentalk-wsnet/pkg/network"
	"github.com/ZentaChain/zentalk-wsnet/pkg/peercomm"
	"github.com/ZentaChain/zentalk-wsnet/pkg/protocol"
	"github.com/ZentaChain/zentalk-wsnet/pkg/tasks"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Stay registered with the transport and serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		scheduler := tasks.NewScheduler(nil)
		defer scheduler.Stop()

		s, err := newSession(cfg, network.WithMetrics(network.NewMetrics(reg)), network.WithScheduler(scheduler))
		if err != nil {
			return err
		}
		defer s.close()
		log := logging.Named(s.log, "client")

		touch := func(name string) {
			if err := db.TouchContact(name); err != nil {
				log.Debugf("touch contact %s: %v", name, err)
			}
		}

		channel := peercomm.NewChannel(cfg.Account.Name, s.keys, s.client, db, logging.Named(s.log, "peercomm"))
		channel.OnMessage = func(m *peercomm.Message) {
			log.Infof("💬 %s: %s", m.Sender, m.Text)
			touch(m.Sender)
		}
		channel.OnFileOffer = func(sender string, offer *peercomm.FileOffer) {
			log.Infof("📎 %s offers %s (%d bytes, %s)", sender, offer.Name, offer.Size, offer.Hash)
			touch(sender)
		}

		s.client.OnPeerEvent = func(ev *protocol.PeerEvent) {
			if _, err := channel.HandlePeerEvent(ev); err != nil && !errors.Is(err, peercomm.ErrNotPeerMessage) {
				log.Warnf("peer event: %v", err)
			}
		}
		s.client.OnContactWarning = func(c *protocol.Contact, reason string) {
			log.Warnf("⚠️  %s", reason)
		}
		s.client.OnContactError = func(c *protocol.Contact, reason string) {
			log.Errorf("❌ %s", reason)
		}
		s.client.OnConnectionError = func(endpoint string, err error) {
			log.Errorf("❌ transport %s: %v", endpoint, err)
		}

		flush := func(*network.SessionInfo) {
			sent, err := db.FlushOutbox(func(c *protocol.Contact, payload json.RawMessage) error {
				return s.client.PeerSend(c, payload)
			})
			if err != nil {
				log.Warnf("outbox flush: %v", err)
			} else if sent > 0 {
				log.Infof("📤 Delivered %d queued messages", sent)
			}
		}

		g, ctx := errgroup.WithContext(ctx)

		if cfg.Transport.Reconnect {
			r := network.NewReconnector(s.client, s.pool, logging.Named(s.log, "reconnect"))
			r.OnConnected = flush
			g.Go(func() error {
				if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		} else {
			if err := s.connect(ctx); err != nil {
				return err
			}
			flush(nil)
		}

		if cfg.API.Enabled {
			server, err := api.NewServer(api.Deps{
				Transport: s.client,
				Channel:   channel,
				DB:        db,
				Gatherer:  reg,
				Log:       logging.Named(s.log, "api"),
			}, &api.Config{
				Host:           cfg.API.Host,
				Port:           cfg.API.Port,
				EnableCORS:     cfg.API.EnableCORS,
				RateLimit:      cfg.API.RateLimit,
				RequestTimeout: cfg.Transport.RequestTimeout(),
				OutboxTTL:      cfg.Storage.OutboxTTL(),
				ReadTimeout:    api.DefaultConfig().ReadTimeout,
				WriteTimeout:   cfg.Transport.RequestTimeout() + api.DefaultConfig().ReadTimeout,
			})
			if err != nil {
				return err
			}
			g.Go(func() error { return server.Start(ctx) })
		}

		scheduler.AddTask("outbox_purge", time.Hour, func() {
			if n, err := db.PurgeExpired(); err == nil && n > 0 {
				log.Infof("Purged %d expired queued messages", n)
			}
		})

		fmt.Fprintf(cmd.OutOrStdout(), "🚀 %s running (pkhash %s)\n", cfg.Account.Name, s.keys.PublicKeyHash())
		<-ctx.Done()
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
