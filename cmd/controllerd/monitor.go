package main

import (
	"context"
	"flag"
	"strings"

	log "github.com/funkygao/log4go"
	cfgpkg "github.com/funkygao/partition-controller/config"
	"github.com/funkygao/partition-controller/controller"
	"github.com/funkygao/partition-controller/metastore/zkstore"
	"github.com/funkygao/partition-controller/telemetry"
	"github.com/funkygao/partition-controller/transport"
)

// daemon is the controllerd process: flag parsing plus the wiring of a
// Controller's collaborators.
type daemon struct {
	cfgFile      string
	zkAddrs      string
	brokerList   string
	controllerID int
	epoch        int

	ctl *controller.Controller
}

func (this *daemon) init() {
	flag.StringVar(&this.cfgFile, "conf", "", "jsconf config file, optional")
	flag.StringVar(&this.zkAddrs, "zk", "localhost:2181", "zookeeper ensemble, comma separated")
	flag.StringVar(&this.brokerList, "brokers", "localhost:9092", "seed broker list for outgoing requests, comma separated")
	flag.IntVar(&this.controllerID, "id", 0, "this controller's broker id")
	flag.IntVar(&this.epoch, "epoch", 1, "controller epoch to run under; must exceed any previous epoch")
	flag.Parse()
}

// run wires store, transport and telemetry into a Controller, starts it,
// and blocks on ctx until it is cancelled (e.g. by a signal in main).
func (this *daemon) run(ctx context.Context) error {
	cfg := cfgpkg.Default()
	if this.cfgFile != "" {
		loaded, err := cfgpkg.Load(this.cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if this.zkAddrs != "" {
		cfg.ZkAddrs = this.zkAddrs
	}
	if this.controllerID != 0 {
		cfg.ControllerID = int32(this.controllerID)
	}

	log.Info("controllerd starting: epoch=%d zk=%s id=%d", this.epoch, cfg.ZkAddrs, cfg.ControllerID)

	store := zkstore.New(&zkstore.Config{
		Addrs:   cfg.ZkAddrs,
		Timeout: cfg.ZkTimeout,
	})
	defer store.Close()

	resolver, err := transport.NewBrokerResolver(strings.Split(this.brokerList, ","))
	if err != nil {
		return err
	}
	defer resolver.Close()
	sender := transport.NewSender(resolver)

	reg := telemetry.New()

	this.ctl = controller.New(int32(this.epoch), store, sender.Send, reg)
	if err := this.ctl.Start(ctx); err != nil {
		return err
	}

	log.Info("controllerd running as controller epoch %d", this.epoch)
	<-ctx.Done()

	log.Info("controllerd shutting down")
	this.ctl.Stop()
	return nil
}
