// Command driver runs a single ride-dispatch ring node.
//
// Go Learning Note — cmd/ convention:
// Each executable lives under its own cmd/<name>/main.go, mirroring the
// teacher's cmd/server layout so multiple binaries can share the same
// module without colliding package names.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"ridering/internal/config"
	"ridering/internal/ring"
	"ridering/internal/wire"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
)

// cliArgs mirrors spec §6's CLI contract: `driver <id> <x> <y>`.
type cliArgs struct {
	Positional struct {
		ID string `positional-arg-name:"id" required:"yes"`
		X  string `positional-arg-name:"x" required:"yes"`
		Y  string `positional-arg-name:"y" required:"yes"`
	} `positional-args:"yes"`

	BasePort   int    `long:"base-port" description:"listening port for driver id 0"`
	MaxDrivers int    `long:"max-drivers" description:"fixed upper bound on driver ids"`
	NoDebug    bool   `long:"no-debug" description:"disable the debug HTTP sidecar"`
	Host       string `long:"host" description:"bind/dial host for the ring" default:"127.0.0.1"`
}

func main() {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	var args cliArgs
	if _, err := flags.Parse(&args); err != nil {
		os.Exit(1) // go-flags already printed usage/error
	}

	cfg := config.NewDefaultConfig()
	if args.BasePort != 0 {
		cfg.Ring.BasePort = args.BasePort
	}
	if args.MaxDrivers != 0 {
		cfg.Ring.MaxDrivers = args.MaxDrivers
	}

	id, x, y, err := parseDriverArgs(args.Positional.ID, args.Positional.X, args.Positional.Y, cfg.Ring.MaxDrivers)
	if err != nil {
		fmt.Fprintln(os.Stderr, "driver:", err)
		os.Exit(1)
	}

	driver, err := ring.New(ring.Config{
		ID:           id,
		Position:     wire.Point{X: x, Y: y},
		Host:         args.Host,
		BasePort:     cfg.Ring.BasePort,
		MaxDrivers:   cfg.Ring.MaxDrivers,
		TripDuration: cfg.Ring.TripDuration,
		MaxLineBytes: cfg.Ring.MaxLineBytes,
		DialTimeout:  cfg.Ring.DialTimeout,
		Logger:       log,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "driver:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Debug.Enabled && !args.NoDebug {
		debugAddr := fmt.Sprintf("%s:%d", args.Host, cfg.Ring.BasePort+int(id)+cfg.Debug.DebugPortOffset)
		debugSrv := ring.NewDebugServer(driver, debugAddr)
		go func() {
			if err := debugSrv.Run(ctx); err != nil {
				log.WithError(err).Warn("debug sidecar stopped")
			}
		}()
	}

	log.WithFields(logrus.Fields{"driver_id": id, "x": x, "y": y}).Info("starting driver")
	if err := driver.Run(ctx); err != nil {
		log.WithError(err).Fatal("driver exited")
	}
}

// parseDriverArgs validates the three positional arguments per spec §6:
// id < N, 0 <= x,y <= 255.
func parseDriverArgs(rawID, rawX, rawY string, maxDrivers int) (id uint16, x, y uint8, err error) {
	idVal, err := strconv.Atoi(rawID)
	if err != nil || idVal < 0 || idVal >= maxDrivers {
		return 0, 0, 0, fmt.Errorf("id must be an integer in [0,%d), got %q", maxDrivers, rawID)
	}
	xVal, err := strconv.Atoi(rawX)
	if err != nil || xVal < 0 || xVal > 255 {
		return 0, 0, 0, fmt.Errorf("x must be an integer in [0,255], got %q", rawX)
	}
	yVal, err := strconv.Atoi(rawY)
	if err != nil || yVal < 0 || yVal > 255 {
		return 0, 0, 0, fmt.Errorf("y must be an integer in [0,255], got %q", rawY)
	}
	return uint16(idVal), uint8(xVal), uint8(yVal), nil
}
