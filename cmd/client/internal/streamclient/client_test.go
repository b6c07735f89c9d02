package streamclient_test

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-stream/cmd/client/internal/streamclient"
	"github.com/shubham-shewale/quote-stream/pkg/models"
	"github.com/shubham-shewale/quote-stream/pkg/protocol"
)

// fakeControl answers one connection with reply and records the command.
func fakeControl(t *testing.T, reply string) (addr string, got <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	ch := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		ch <- line
		conn.Write([]byte(reply))
	}()
	return ln.Addr().String(), ch
}

func newClient(t *testing.T, cfg streamclient.Config) *streamclient.Client {
	t.Helper()
	c, err := streamclient.New(zap.NewNop(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_SubscribeOK(t *testing.T) {
	addr, got := fakeControl(t, "OK\n")
	c := newClient(t, streamclient.Config{ServerAddr: addr, Tickers: []string{"AAPL", "TSLA"}})

	if err := c.Subscribe(context.Background()); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	line := <-got
	cmd, err := protocol.ParseStreamCommand(line)
	if err != nil {
		t.Fatalf("Client sent invalid command %q: %v", line, err)
	}
	host, port, _ := net.SplitHostPort(cmd.Address)
	if host != "127.0.0.1" {
		t.Errorf("Expected advertised loopback IP, got %s", host)
	}
	if port != strconv.Itoa(c.LocalAddr().Port) {
		t.Errorf("Expected the bound UDP port %d, got %s", c.LocalAddr().Port, port)
	}
	if strings.Join(cmd.Tickers, ",") != "AAPL,TSLA" {
		t.Errorf("Unexpected tickers %v", cmd.Tickers)
	}
}

func TestClient_SubscribeRejected(t *testing.T) {
	addr, _ := fakeControl(t, "ERR ticker list cannot be empty\n")
	c := newClient(t, streamclient.Config{ServerAddr: addr, Tickers: []string{"AAPL"}})

	err := c.Subscribe(context.Background())
	var rejected *protocol.RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("Expected RejectedError, got %v", err)
	}
	if rejected.Reason != "ticker list cannot be empty" {
		t.Errorf("Unexpected reason %q", rejected.Reason)
	}
}

func TestClient_NoTickers(t *testing.T) {
	if _, err := streamclient.New(zap.NewNop(), streamclient.Config{ServerAddr: "127.0.0.1:1"}); !errors.Is(err, protocol.ErrEmptyTickers) {
		t.Errorf("Expected ErrEmptyTickers, got %v", err)
	}
}

func TestClient_RunReceivesAndPings(t *testing.T) {
	server, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer server.Close()

	c := newClient(t, streamclient.Config{
		ServerAddr:   "127.0.0.1:1",
		PingAddr:     server.LocalAddr().String(),
		Tickers:      []string{"AAPL"},
		PingInterval: 20 * time.Millisecond,
	})

	var mu sync.Mutex
	var quotes []models.Quote
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx, func(q models.Quote) {
			mu.Lock()
			quotes = append(quotes, q)
			mu.Unlock()
		})
	}()

	buf := make([]byte, 64)
	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, from, err := server.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("Expected a ping: %v", err)
	}
	if string(buf[:n]) != "PING" {
		t.Errorf("Expected PING payload, got %q", buf[:n])
	}
	if from.Port != c.LocalAddr().Port {
		t.Errorf("Ping should come from the quote socket, got port %d", from.Port)
	}

	payload, _ := protocol.EncodeQuote(models.Quote{Ticker: "AAPL", Price: 150, Volume: 2000, Timestamp: 1})
	server.WriteToUDP([]byte("garbage"), from)
	server.WriteToUDP(payload, from)

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(quotes)
		mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Quote was not delivered to the handler")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
