package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/i5heu/sealdex/internal/config"
	"github.com/i5heu/sealdex/pkg/carrier"
	"github.com/i5heu/sealdex/pkg/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	log := logrus.New()

	conf, err := config.GetConfig(*configPath, flag.Args())
	if err != nil {
		log.Fatal(err)
	}

	for _, path := range conf.DataPaths {
		if err := os.MkdirAll(path, 0o700); err != nil {
			log.Fatalf("create data path %s: %v", path, err)
		}
	}

	srv, err := server.New(server.Config{
		Paths:         conf.DataPaths,
		MinimumFreeGB: conf.MinimumFreeGB,
		Logger:        log,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer srv.Close()

	ln, err := net.Listen("tcp", conf.ListenAddr)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithField("addr", ln.Addr().String()).Info("sealdex server listening")
	if err := carrier.Serve(ctx, ln, srv, log); err != nil {
		log.Fatal(err)
	}
}
