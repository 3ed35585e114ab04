package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"

	"wsbridge/internal"

	"golang.org/x/sync/errgroup"
)

func headerFromMap(m map[string]string) http.Header {
	h := http.Header{}
	for k, v := range m {
		h.Set(k, v)
	}
	return h
}

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "c", "config.yaml", "config path")
	flag.Parse()

	cfg, err := internal.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := internal.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Client.Timeout)
	defer cancel()

	conn, err := internal.Dial(ctx, cfg.Client.URL, &internal.DialOptions{
		Subprotocols:  cfg.Client.Subprotocols,
		Header:        headerFromMap(cfg.Client.Headers),
		RecvQueueSize: cfg.Client.QueueSize,
		Fwmark:        cfg.Client.Fwmark,
		Logger:        logger,
	})
	if err != nil {
		log.Fatalf("dial %s: %v", cfg.Client.URL, err)
	}

	payload := cfg.Client.Payload
	log.Printf("connected to %s, sending %q", cfg.Client.URL, payload)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return conn.Send(gctx, internal.TextMessage(payload))
	})
	g.Go(func() error {
		msg, err := conn.Recv(gctx)
		if err != nil {
			return err
		}
		if !msg.IsText() || msg.Text() != payload {
			return fmt.Errorf("echo mismatch: got %q", msg.Text())
		}
		log.Printf("echo ok: %q", msg.Text())
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("round trip: %v", err)
	}

	if err := conn.Close(internal.StatusNormalClosure, "done"); err != nil {
		log.Fatalf("close: %v", err)
	}
	msg, err := conn.Recv(ctx)
	if err != nil {
		log.Fatalf("close echo: %v", err)
	}
	if msg.IsClose() && msg.Close != nil {
		log.Printf("closed: code=%d reason=%q", msg.Close.Code, msg.Close.Reason)
	}
}
