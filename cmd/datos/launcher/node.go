package launcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"github.com/barrystyle/datos/datos"
	"github.com/barrystyle/datos/integration"
	"github.com/barrystyle/datos/logger"
	"github.com/barrystyle/datos/rpcapi"
)

// networkSpacing separates the generated work blocks of a main or test
// network node.
const networkSpacing = 60

func runNode(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	if err := logger.Setup(cfg.loggerConfig()); err != nil {
		return err
	}
	log := logger.New("launcher")

	n, err := makeNode(cfg, time.Now())
	if err != nil {
		return err
	}

	var srv *http.Server
	if cfg.Node.RPC.HTTPEnabled {
		if srv, err = makeHTTPServer(cfg, n); err != nil {
			n.Stop()
			return err
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("HTTP server stopped")
			}
		}()
		log.WithField("addr", srv.Addr).Info("HTTP server listening")
	}

	if cfg.Staking.Enabled {
		n.Start()
	} else {
		log.Info("Staking disabled")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("Shutdown signal received, exiting...")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("HTTP server shutdown")
		}
	}
	return n.Stop()
}

// makeNode assembles the node for the configured network. Genesis is dated
// so that the last work block is exactly one minimum stake age before now,
// which makes genesis coins eligible as kernels from the first search.
func makeNode(cfg Config, now time.Time) (*integration.Node, error) {
	rules, err := cfg.Rules()
	if err != nil {
		return nil, err
	}
	nodeCfg, err := cfg.nodeConfig()
	if err != nil {
		return nil, err
	}
	keys, err := cfg.stakingKeys(rules)
	if err != nil {
		return nil, err
	}
	reserve, err := cfg.reserveBalance()
	if err != nil {
		return nil, err
	}

	g, fakeKeys, err := makeGenesis(cfg, rules, now)
	if err != nil {
		return nil, err
	}
	n, err := integration.NewNode(nodeCfg, cfg.journalDir(), g, append(fakeKeys, keys...))
	if err != nil {
		return nil, err
	}
	for _, w := range n.Wallets {
		w.SetReserveBalance(reserve)
	}
	logger.New("launcher").WithFields(logrus.Fields{
		"name":    cfg.Node.Name,
		"network": rules.Name,
		"preset":  cfg.Storage.Preset,
	}).Info("Node ready")
	return n, nil
}

func makeGenesis(cfg Config, rules datos.Rules, now time.Time) (integration.Genesis, []*btcec.PrivateKey, error) {
	var (
		g    integration.Genesis
		keys []*btcec.PrivateKey
	)
	if cfg.IsFakeNet() {
		stakers := cfg.Network.FakeStakers
		if stakers < 1 {
			stakers = 1
		}
		outputs := cfg.Network.FakeOutputs
		if outputs < 1 {
			outputs = integration.FakeOutputs
		}
		var err error
		g, keys, err = integration.FakeGenesis(rules.ChainParams(), stakers, integration.FakeBalance, outputs)
		if err != nil {
			return integration.Genesis{}, nil, err
		}
	} else {
		g = integration.Genesis{BlockSpacing: networkSpacing}
	}
	g.Time = now.Unix() - int64(rules.Stake.LastPoWBlock)*g.BlockSpacing - int64(rules.Stake.MinAge/time.Second)
	return g, keys, nil
}

// makeHTTPServer serves JSON-RPC at /rpc and the REST status routes.
func makeHTTPServer(cfg Config, n *integration.Node) (*http.Server, error) {
	rpcSrv, err := rpcapi.NewServer(n)
	if err != nil {
		return nil, fmt.Errorf("rpc server: %w", err)
	}
	r := mux.NewRouter()
	rpcapi.RegisterRoutes(r, rpcapi.NewHandler(n), rpcSrv)
	return &http.Server{
		Addr:              net.JoinHostPort(cfg.Node.RPC.HTTPAddr, strconv.Itoa(cfg.Node.RPC.HTTPPort)),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}
