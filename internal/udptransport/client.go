// Package udptransport implements the connectionless datagram channel
// used for high-frequency, loss-tolerant traffic such as position
// updates.
package udptransport

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/relaymesh/channelsdk/internal/logging"
	"github.com/relaymesh/channelsdk/internal/wire"
)

const (
	recommendedMaxPayload = 60 * 1024
	mtuSafePayload        = 1200

	defaultSendAndWaitTimeout = 3 * time.Second
)

// Client is a connectionless UDP handle to a single remote host:port.
// The host is resolved once and cached; a single socket is reused and
// demultiplexes sendAndWait replies by requestId.
type Client struct {
	addr *net.UDPAddr
	conn *net.UDPConn

	mu      sync.Mutex
	waiters map[string]chan wire.UDPReply

	closeOnce sync.Once
	done      chan struct{}
}

// New resolves host:port and opens the shared socket.
func New(host string, port int) (*Client, error) {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("resolve udp addr: %w: %v", wire.ErrTransport, err)
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("open udp socket: %w: %v", wire.ErrTransport, err)
	}

	c := &Client{
		addr:    addr,
		conn:    conn,
		waiters: make(map[string]chan wire.UDPReply),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Send serializes envelope to JSON and writes it in a single datagram.
// It returns true on a successful write syscall; it does not wait for
// or guarantee delivery.
func (c *Client) Send(envelope wire.UDPEnvelope) (bool, error) {
	body, err := json.Marshal(envelope)
	if err != nil {
		return false, fmt.Errorf("encode udp envelope: %w: %v", wire.ErrProtocol, err)
	}
	if len(body) > recommendedMaxPayload {
		logging.Warn("udp payload exceeds recommended size",
			"size", humanize.Bytes(uint64(len(body))),
			"limit", humanize.Bytes(uint64(recommendedMaxPayload)))
	} else if len(body) > mtuSafePayload {
		logging.Warn("udp payload exceeds mtu-safe size",
			"size", humanize.Bytes(uint64(len(body))),
			"mtuSafe", humanize.Bytes(uint64(mtuSafePayload)))
	}

	n, err := c.conn.WriteToUDP(body, c.addr)
	if err != nil {
		return false, fmt.Errorf("udp write: %w: %v", wire.ErrTransport, err)
	}
	return n == len(body), nil
}

// SendAndWait sends envelope with a freshly generated requestId and
// blocks until a matching reply arrives or timeout elapses, returning
// (nil, nil) on timeout.
func (c *Client) SendAndWait(envelope wire.UDPEnvelope, timeout time.Duration) (*wire.UDPReply, error) {
	if timeout <= 0 {
		timeout = defaultSendAndWaitTimeout
	}
	envelope.RequestID = uuid.NewString()

	ch := make(chan wire.UDPReply, 1)
	c.mu.Lock()
	c.waiters[envelope.RequestID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.waiters, envelope.RequestID)
		c.mu.Unlock()
	}()

	ok, err := c.Send(envelope)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("udp write incomplete: %w", wire.ErrTransport)
	}

	select {
	case reply := <-ch:
		return &reply, nil
	case <-time.After(timeout):
		return nil, nil
	case <-c.done:
		return nil, nil
	}
}

// readLoop demultiplexes inbound datagrams to sendAndWait callers by
// requestId; unmatched or malformed datagrams are dropped.
func (c *Client) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, _, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-c.done:
				return
			default:
				logging.Debug("udp read error", "error", err)
				return
			}
		}

		var reply wire.UDPReply
		if err := json.Unmarshal(buf[:n], &reply); err != nil {
			continue
		}
		if reply.RequestID == "" {
			continue
		}

		c.mu.Lock()
		ch, ok := c.waiters[reply.RequestID]
		c.mu.Unlock()
		if !ok {
			continue
		}
		select {
		case ch <- reply:
		default:
		}
	}
}

// Close releases the underlying socket; safe to call multiple times.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}
