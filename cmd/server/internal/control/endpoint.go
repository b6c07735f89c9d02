package control

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-stream/cmd/server/internal/session"
	"github.com/shubham-shewale/quote-stream/pkg/protocol"
)

const (
	DefaultReadTimeout = 5 * time.Second
	writeTimeout       = 5 * time.Second
	acceptBackoff      = 50 * time.Millisecond
)

type SessionFactory interface {
	Create(cmd protocol.StreamCommand) (*session.Session, error)
}

type Options struct {
	ReadTimeout time.Duration
}

// Endpoint accepts control connections, each carrying exactly one STREAM
// command, and starts a session for every valid one.
type Endpoint struct {
	logger   *zap.Logger
	listener net.Listener
	factory  SessionFactory
	opts     Options

	// handlers and the sessions they start
	wg sync.WaitGroup

	accepted atomic.Uint64
	rejected atomic.Uint64
}

func NewEndpoint(logger *zap.Logger, listener net.Listener, factory SessionFactory, opts Options) *Endpoint {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	return &Endpoint{
		logger:   logger,
		listener: listener,
		factory:  factory,
		opts:     opts,
	}
}

func (e *Endpoint) Addr() net.Addr { return e.listener.Addr() }

// Stats returns the number of accepted and rejected commands.
func (e *Endpoint) Stats() (accepted, rejected uint64) {
	return e.accepted.Load(), e.rejected.Load()
}

// Serve runs the accept loop until ctx is done, then waits for every
// connection handler and every session it started.
func (e *Endpoint) Serve(ctx context.Context) error {
	e.logger.Info("Control endpoint listening", zap.Stringer("addr", e.listener.Addr()))

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			e.listener.Close()
		case <-stop:
		}
	}()

	for {
		conn, err := e.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			e.logger.Warn("Accept error", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(acceptBackoff):
			}
			continue
		}

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.handle(ctx, conn)
		}()
	}
	close(stop)

	e.wg.Wait()
	accepted, rejected := e.Stats()
	e.logger.Info("Control endpoint stopped", zap.Uint64("accepted", accepted), zap.Uint64("rejected", rejected))
	return nil
}

func (e *Endpoint) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	logger := e.logger.With(zap.Stringer("remote", conn.RemoteAddr()))

	line, err := e.readCommand(ctx, conn)
	if err != nil {
		if errors.Is(err, protocol.ErrCommandTooLong) {
			e.reject(logger, conn, err)
			return
		}
		logger.Debug("Control connection closed without a command", zap.Error(err))
		return
	}

	cmd, err := protocol.ParseStreamCommand(line)
	if err != nil {
		e.reject(logger, conn, err)
		return
	}

	sess, err := e.factory.Create(cmd)
	if err != nil {
		e.reject(logger, conn, err)
		return
	}

	if err := e.reply(conn, protocol.FormatOK()); err != nil {
		logger.Warn("Failed to acknowledge STREAM, dropping session", zap.Error(err))
		sess.Terminate(session.StateShutdownRequested)
		return
	}
	e.accepted.Add(1)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		sess.Run(ctx)
	}()
}

// readCommand returns the first line. Data after the newline is ignored.
// A pending read is cut short when ctx is done.
func (e *Endpoint) readCommand(ctx context.Context, conn net.Conn) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(e.opts.ReadTimeout)); err != nil {
		return "", err
	}
	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	defer stop()

	reader := bufio.NewReader(io.LimitReader(conn, protocol.MaxCommandLength))
	line, err := reader.ReadString('\n')
	switch {
	case err == nil:
		return line, nil
	case errors.Is(err, io.EOF) && len(line) >= protocol.MaxCommandLength:
		return "", protocol.ErrCommandTooLong
	case errors.Is(err, io.EOF) && strings.TrimSpace(line) != "":
		// peer half-closed after an unterminated command
		return line, nil
	default:
		return "", err
	}
}

func (e *Endpoint) reject(logger *zap.Logger, conn net.Conn, reason error) {
	e.rejected.Add(1)
	logger.Info("Rejected control command", zap.Error(reason))
	if err := e.reply(conn, protocol.FormatError(reason)); err != nil {
		logger.Debug("Failed to send rejection", zap.Error(err))
	}
}

func (e *Endpoint) reply(conn net.Conn, line string) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err := io.WriteString(conn, line)
	return err
}
