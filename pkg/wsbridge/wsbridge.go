// Package wsbridge is the public surface for using this repository as a
// library: one WebSocket client that behaves identically over the native
// transport and the browser transport, selected at build time. The
// implementation lives in internal/ and may change without notice.
package wsbridge

import (
	"context"
	"time"

	"go.uber.org/zap"

	"wsbridge/internal"
)

// --- Messages ---

type Message = internal.Message

type MessageType = internal.MessageType

type CloseFrame = internal.CloseFrame

type StatusCode = internal.StatusCode

const (
	MessageText   = internal.MessageText
	MessageBinary = internal.MessageBinary
	MessageClose  = internal.MessageClose
)

const (
	StatusNormalClosure           = internal.StatusNormalClosure
	StatusGoingAway               = internal.StatusGoingAway
	StatusProtocolError           = internal.StatusProtocolError
	StatusUnsupportedData         = internal.StatusUnsupportedData
	StatusNoStatusRcvd            = internal.StatusNoStatusRcvd
	StatusAbnormalClosure         = internal.StatusAbnormalClosure
	StatusInvalidFramePayloadData = internal.StatusInvalidFramePayloadData
	StatusPolicyViolation         = internal.StatusPolicyViolation
	StatusMessageTooBig           = internal.StatusMessageTooBig
	StatusMandatoryExtension      = internal.StatusMandatoryExtension
	StatusInternalError           = internal.StatusInternalError
	StatusServiceRestart          = internal.StatusServiceRestart
	StatusTryAgainLater           = internal.StatusTryAgainLater
	StatusBadGateway              = internal.StatusBadGateway
	StatusTLSHandshake            = internal.StatusTLSHandshake
)

func TextMessage(s string) Message { return internal.TextMessage(s) }

func BinaryMessage(b []byte) Message { return internal.BinaryMessage(b) }

func CloseMessage(frame *CloseFrame) Message { return internal.CloseMessage(frame) }

// --- Errors ---

var (
	ErrConnectionFailed = internal.ErrConnectionFailed
	ErrAlreadyClosed    = internal.ErrAlreadyClosed
	ErrInvalidURL       = internal.ErrInvalidURL
	ErrProtocol         = internal.ErrProtocol
	ErrIO               = internal.ErrIO
	ErrAbnormalClosure  = internal.ErrAbnormalClosure
)

type CloseError = internal.CloseError

func IsCloseError(err error, codes ...StatusCode) bool {
	return internal.IsCloseError(err, codes...)
}

func CloseStatus(err error) StatusCode { return internal.CloseStatus(err) }

// --- Connection ---

type Conn = internal.Conn

type DialOptions = internal.DialOptions

type State = internal.State

const (
	StateConnecting = internal.StateConnecting
	StateOpen       = internal.StateOpen
	StateClosing    = internal.StateClosing
	StateClosed     = internal.StateClosed
)

// Dial opens a WebSocket connection and returns the handle once it is
// open. A nil opts is valid.
func Dial(ctx context.Context, url string, opts *DialOptions) (*Conn, error) {
	return internal.Dial(ctx, url, opts)
}

// Probe verifies that a WebSocket handshake succeeds and reports how long
// it took.
func Probe(ctx context.Context, url string, opts *DialOptions) (time.Duration, error) {
	return internal.Probe(ctx, url, opts)
}

// --- Demo support ---

type EchoServer = internal.EchoServer

type Config = internal.Config

type ClientConfig = internal.ClientConfig

type EchoConfig = internal.EchoConfig

type LogConfig = internal.LogConfig

// LoadConfig loads the YAML configuration the demo binaries use.
func LoadConfig(path string) (*Config, error) { return internal.LoadConfig(path) }

// NewLogger builds a zap logger from config.
func NewLogger(cfg LogConfig) (*zap.Logger, error) { return internal.NewLogger(cfg) }

// EnablePrometheusMetrics turns on process-wide connection telemetry.
func EnablePrometheusMetrics() { internal.EnablePrometheusMetrics() }

// StartMetricsServer serves /metrics on addr until ctx is done.
func StartMetricsServer(ctx context.Context, addr string) error {
	return internal.StartMetricsServer(ctx, addr)
}
