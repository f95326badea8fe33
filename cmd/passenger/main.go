// Command passenger simulates a fleet of passengers against a running ring,
// loading its fleet from a JSON file (§9 supplemented feature).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"ridering/internal/config"
	"ridering/internal/passengerclient"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
)

type cliArgs struct {
	Positional struct {
		FleetFile string `positional-arg-name:"fleet-file"`
	} `positional-args:"yes"`

	Host         string `long:"host" default:"127.0.0.1"`
	BasePort     int    `long:"base-port"`
	MaxDrivers   int    `long:"max-drivers"`
	PaymentsAddr string `long:"payments-addr"`
}

func main() {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	var args cliArgs
	if _, err := flags.Parse(&args); err != nil {
		os.Exit(1)
	}

	cfg := config.NewDefaultConfig()
	fleetFile := cfg.Passenger.FleetFile
	if args.Positional.FleetFile != "" {
		fleetFile = args.Positional.FleetFile
	}
	if args.BasePort != 0 {
		cfg.Ring.BasePort = args.BasePort
	}
	if args.MaxDrivers != 0 {
		cfg.Ring.MaxDrivers = args.MaxDrivers
	}
	paymentsAddr := cfg.Payments.Port
	if args.PaymentsAddr != "" {
		paymentsAddr = args.PaymentsAddr
	}

	fleet, err := passengerclient.LoadFleet(fleetFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "passenger:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pcfg := passengerclient.Config{
		Host:         args.Host,
		BasePort:     cfg.Ring.BasePort,
		MaxDrivers:   cfg.Ring.MaxDrivers,
		PaymentsAddr: paymentsAddr,
		MaxLineBytes: cfg.Ring.MaxLineBytes,
		DialTimeout:  cfg.Ring.DialTimeout,
	}

	var wg sync.WaitGroup
	for _, entry := range fleet {
		wg.Add(1)
		go func(e passengerclient.FleetEntry) {
			defer wg.Done()
			if err := passengerclient.Run(ctx, pcfg, e, log); err != nil {
				log.WithField("passenger_id", e.ID).WithError(err).Error("passenger run failed")
			}
		}(entry)
	}
	wg.Wait()
}
