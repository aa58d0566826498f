// Command p2pchatd runs one peer-to-peer group chat node: it wires the
// network engine, the inbound dispatcher, the group and user managers, and
// the presentation event loop, then blocks until interrupted.
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p/core/crypto"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/nyxlink/p2pchat/internal/client"
	"github.com/nyxlink/p2pchat/internal/command"
	"github.com/nyxlink/p2pchat/internal/config"
	"github.com/nyxlink/p2pchat/internal/dispatcher"
	"github.com/nyxlink/p2pchat/internal/engine"
	"github.com/nyxlink/p2pchat/internal/managers/diag"
	"github.com/nyxlink/p2pchat/internal/managers/group"
	"github.com/nyxlink/p2pchat/internal/managers/user"
	"github.com/nyxlink/p2pchat/internal/model"
	"github.com/nyxlink/p2pchat/internal/presentation"
)

var log = logging.Logger("p2pchatd")

// stdoutSink is a minimal presentation.Sink for standalone runs; a UI
// bridge or test harness substitutes its own.
type stdoutSink struct{}

func (stdoutSink) Handle(name string, evt presentation.FrontendEvent) {
	log.Infof("event %s: %+v", name, evt)
}

func main() {
	cfgPath := flag.String("config", "p2pchatd.json", "path to the node's JSON configuration file")
	logLevel := flag.String("log-level", "info", "log level for all subsystems (debug, info, warn, error)")
	flag.Parse()

	logging.SetAllLoggers(logging.LevelInfo)
	if lvl, err := logging.LevelFromString(*logLevel); err == nil {
		logging.SetAllLoggers(lvl)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *cfgPath); err != nil {
		log.Errorf("exiting: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfg, created, err := config.Ensure(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if created {
		log.Infof("wrote default config to %s", cfgPath)
	}

	priv, err := loadIdentity(cfg.Identity)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}

	eng, err := engine.New(ctx, engine.Config{
		PrivateKey:  priv,
		PresenceTTL: cfg.PresenceTTL(),
	})
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	log.Infof("peer id: %s", eng.LocalPeerID())

	cli := client.New(eng)

	// The engine loop must be running before any command is issued through
	// the client, or StartListen/Dial wait for a reply nobody sends.
	go eng.Run(ctx)

	for _, raw := range cfg.Network.ListenAddrs {
		addr, err := ma.NewMultiaddr(raw)
		if err != nil {
			return fmt.Errorf("parse listen address %q: %w", raw, err)
		}
		if _, err := cli.StartListen(ctx, addr); err != nil {
			return fmt.Errorf("listen on %q: %w", raw, err)
		}
	}

	for _, raw := range cfg.Network.Bootstrap {
		addr, err := ma.NewMultiaddr(raw)
		if err != nil {
			log.Warnf("skipping invalid bootstrap address %q: %v", raw, err)
			continue
		}
		if err := cli.Dial(ctx, addr); err != nil {
			log.Warnf("bootstrap dial to %q failed: %v", raw, err)
		}
	}

	groupMgr := group.New()
	userMgr := user.New(model.LocalProfile{Name: cfg.Profile.Name, Avatar: cfg.Profile.Avatar})
	diagMgr := diag.New(cli)
	facade := command.NewFacade(groupMgr, userMgr, diagMgr)

	pres := presentation.NewLoop(stdoutSink{}, engine.QueueCapacity)
	disp := dispatcher.New(eng, facade.Managers(), cli, pres)

	go pres.Run(ctx)
	go disp.Run(ctx)

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

func loadIdentity(id config.Identity) (crypto.PrivKey, error) {
	if id.DeterministicSeed != nil {
		return engine.DeterministicKey(*id.DeterministicSeed)
	}

	if b, err := os.ReadFile(id.KeyFile); err == nil {
		return crypto.UnmarshalPrivateKey(b)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", id.KeyFile, err)
	}

	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, err
	}
	b, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(id.KeyFile, b, 0o600); err != nil {
		return nil, fmt.Errorf("write %s: %w", id.KeyFile, err)
	}
	return priv, nil
}
