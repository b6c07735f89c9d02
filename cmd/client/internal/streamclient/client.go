package streamclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shubham-shewale/quote-stream/pkg/models"
	"github.com/shubham-shewale/quote-stream/pkg/protocol"
)

const (
	DefaultPingInterval = 2 * time.Second
	replyTimeout        = 5 * time.Second
	maxDatagramSize     = 2048
)

type Config struct {
	ServerAddr string // control endpoint, host:port
	// PingAddr receives keep-alives; defaults to ServerAddr over UDP.
	PingAddr string
	UDPPort  int
	// AdvertiseIP is put in the STREAM command; defaults to the local IP of
	// the control connection.
	AdvertiseIP  string
	Tickers      []string
	PingInterval time.Duration
}

// Client subscribes to a quote server and receives quotes on one UDP socket,
// which it also uses to send keep-alives so the server can match them.
type Client struct {
	logger *zap.Logger
	cfg    Config
	conn   *net.UDPConn
}

func New(logger *zap.Logger, cfg Config) (*Client, error) {
	if len(cfg.Tickers) == 0 {
		return nil, protocol.ErrEmptyTickers
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.PingAddr == "" {
		cfg.PingAddr = cfg.ServerAddr
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: cfg.UDPPort})
	if err != nil {
		return nil, fmt.Errorf("failed to bind UDP port %d: %w", cfg.UDPPort, err)
	}

	return &Client{logger: logger, cfg: cfg, conn: conn}, nil
}

func (c *Client) LocalAddr() *net.UDPAddr {
	return c.conn.LocalAddr().(*net.UDPAddr)
}

// Subscribe sends the STREAM command and waits for the reply. A rejection
// is returned as *protocol.RejectedError.
func (c *Client) Subscribe(ctx context.Context) error {
	var d net.Dialer
	tcp, err := d.DialContext(ctx, "tcp", c.cfg.ServerAddr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.cfg.ServerAddr, err)
	}
	defer tcp.Close()

	ip := c.cfg.AdvertiseIP
	if ip == "" {
		ip = tcp.LocalAddr().(*net.TCPAddr).IP.String()
	}
	target := net.JoinHostPort(ip, strconv.Itoa(c.LocalAddr().Port))

	deadline := time.Now().Add(replyTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	tcp.SetDeadline(deadline)

	cmd := protocol.FormatStreamCommand(target, c.cfg.Tickers)
	if _, err := tcp.Write([]byte(cmd)); err != nil {
		return fmt.Errorf("failed to send STREAM command: %w", err)
	}

	reply, err := bufio.NewReader(tcp).ReadString('\n')
	if err != nil && reply == "" {
		return fmt.Errorf("failed to read server reply: %w", err)
	}
	if err := protocol.ParseReply(reply); err != nil {
		return err
	}

	c.logger.Info("Subscribed", zap.String("target", target), zap.Strings("tickers", c.cfg.Tickers))
	return nil
}

// Run receives quotes and sends keep-alives until ctx is done.
func (c *Client) Run(ctx context.Context, onQuote func(models.Quote)) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		return c.conn.Close()
	})
	g.Go(func() error { return c.receive(gctx, onQuote) })
	g.Go(func() error { return c.keepAlive(gctx) })

	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *Client) Close() error {
	err := c.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *Client) receive(ctx context.Context, onQuote func(models.Quote)) error {
	buf := make([]byte, maxDatagramSize)
	for {
		n, _, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("UDP receive failed: %w", err)
		}

		q, err := protocol.DecodeQuote(buf[:n])
		if err != nil {
			c.logger.Warn("Ignoring malformed datagram", zap.Int("bytes", n), zap.Error(err))
			continue
		}
		onQuote(q)
	}
}

func (c *Client) keepAlive(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", c.cfg.PingAddr)
	if err != nil {
		return fmt.Errorf("invalid ping address %s: %w", c.cfg.PingAddr, err)
	}

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		if _, err := c.conn.WriteToUDP([]byte(protocol.PingPayload), addr); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("Failed to send ping", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
