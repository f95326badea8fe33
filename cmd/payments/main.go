// Command payments runs the standalone payments service (spec §6).
package main

import (
	"os"

	"ridering/internal/config"
	"ridering/internal/payments"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
)

type cliArgs struct {
	Port string `long:"port" description:"payments listen address, e.g. :8000"`
}

func main() {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	var args cliArgs
	if _, err := flags.Parse(&args); err != nil {
		os.Exit(1)
	}

	cfg := config.NewDefaultConfig()
	addr := cfg.Payments.Port
	if args.Port != "" {
		addr = args.Port
	}

	svc := payments.New(cfg.Ring.MaxLineBytes, log)
	ln, err := svc.Listen(addr)
	if err != nil {
		log.WithError(err).Fatal("failed to start payments service")
	}
	svc.Serve(ln)
}
