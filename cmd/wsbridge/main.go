package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"wsbridge/pkg/wsbridge"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagProtocols []string
	flagHeaders   []string
	flagQueueSize int
	flagFwmark    uint32
	flagVerbose   bool
	flagTimeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "wsbridge",
	Short: "WebSocket client tool",
	Long: `Command-line front end for the wsbridge client library.
Connects to WebSocket endpoints and measures handshakes.`,
}

var connectCmd = &cobra.Command{
	Use:   "connect [url]",
	Short: "Connect and relay stdin lines to the server",
	Args:  cobra.ExactArgs(1),
	RunE:  runConnect,
}

var probeCmd = &cobra.Command{
	Use:   "probe [url]",
	Short: "Verify the handshake and report its round-trip time",
	Args:  cobra.ExactArgs(1),
	RunE:  runProbe,
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&flagProtocols, "protocol", nil,
		"sub-protocol to offer, repeatable")
	rootCmd.PersistentFlags().StringSliceVar(&flagHeaders, "header", nil,
		"extra handshake header as name=value, native builds only")
	rootCmd.PersistentFlags().IntVar(&flagQueueSize, "queue-size", 0,
		"receive queue bound for browser builds (0 uses the default)")
	rootCmd.PersistentFlags().Uint32Var(&flagFwmark, "fwmark", 0,
		"linux socket mark (0 disables)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false,
		"debug logging")
	probeCmd.Flags().DurationVar(&flagTimeout, "timeout", 10*time.Second,
		"handshake timeout")

	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(probeCmd)
}

func dialOptions() (*wsbridge.DialOptions, error) {
	header := http.Header{}
	for _, h := range flagHeaders {
		name, value, ok := strings.Cut(h, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --header %q, want name=value", h)
		}
		header.Add(name, value)
	}

	logger := zap.NewNop()
	if flagVerbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		logger = l
	}

	return &wsbridge.DialOptions{
		Subprotocols:  flagProtocols,
		Header:        header,
		RecvQueueSize: flagQueueSize,
		Fwmark:        flagFwmark,
		Logger:        logger,
	}, nil
}

func runConnect(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, err := dialOptions()
	if err != nil {
		return err
	}
	conn, err := wsbridge.Dial(ctx, args[0], opts)
	if err != nil {
		return fmt.Errorf("dial %s: %w", args[0], err)
	}
	defer conn.Close(wsbridge.StatusNormalClosure, "")

	if p := conn.Subprotocol(); p != "" {
		fmt.Fprintf(os.Stderr, "connected (subprotocol %s)\n", p)
	} else {
		fmt.Fprintln(os.Stderr, "connected")
	}

	// stdin pump; EOF ends the session with a normal close.
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			if err := conn.Send(ctx, wsbridge.TextMessage(sc.Text())); err != nil {
				fmt.Fprintf(os.Stderr, "send: %v\n", err)
				return
			}
		}
		_ = conn.Close(wsbridge.StatusNormalClosure, "stdin closed")
	}()

	for {
		msg, err := conn.Recv(ctx)
		if err != nil {
			if errors.Is(err, wsbridge.ErrAlreadyClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		switch {
		case msg.IsClose():
			if msg.Close != nil {
				fmt.Fprintf(os.Stderr, "closed: code=%d reason=%q\n", msg.Close.Code, msg.Close.Reason)
			} else {
				fmt.Fprintln(os.Stderr, "closed")
			}
			return nil
		case msg.IsBinary():
			fmt.Printf("%x\n", msg.Data)
		default:
			fmt.Println(msg.Text())
		}
	}
}

func runProbe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), flagTimeout)
	defer cancel()

	opts, err := dialOptions()
	if err != nil {
		return err
	}
	d, err := wsbridge.Probe(ctx, args[0], opts)
	if err != nil {
		return err
	}
	fmt.Printf("handshake ok in %s\n", d.Round(time.Millisecond))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
