package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	riolink "github.com/mfkiwl/OpenRIO"
	"github.com/mfkiwl/OpenRIO/wire"
)

// symbolWireSize is the on-the-wire encoding of one wire.Symbol over TCP:
// one kind byte plus a 4-byte big-endian value, a stand-in for the
// 8b/10b-encoded physical layer this engine treats as external.
const symbolWireSize = 5

// TCPCarrier drives a Stack over a net.Conn: a reader goroutine decodes
// inbound symbols and calls PortAddSymbol, a writer goroutine calls
// PortGetSymbol on a fixed tick and encodes the result outbound. A mutex
// serializes both against the Stack, since the engine core itself assumes
// single-threaded callers; this lock lives in the ambient transport
// wrapper, never inside the Stack. Grounded on session/tcp.go's paired
// recvLoop/sendLoop goroutines over one net.Conn.
type TCPCarrier struct {
	conn  net.Conn
	stack *riolink.Stack
	log   *log.Logger
	mu    sync.Mutex

	tick time.Duration
	done chan struct{}
	errs chan error
}

// NewTCPCarrier starts pumping symbols between conn and stack. tick sets
// the outbound polling interval; RapidIO's symbol rate is clocked by the
// physical layer, which a TCP demo link has no equivalent of.
func NewTCPCarrier(conn net.Conn, stack *riolink.Stack, tick time.Duration) *TCPCarrier {
	c := &TCPCarrier{
		conn:  conn,
		stack: stack,
		log:   log.Default().With("carrier", "tcp", "remote", conn.RemoteAddr()),
		tick:  tick,
		done:  make(chan struct{}),
		errs:  make(chan error, 2),
	}
	go c.recvLoop()
	go c.sendLoop()
	return c
}

// Errs reports fatal carrier errors (typically connection loss). The
// channel is closed when the carrier stops.
func (c *TCPCarrier) Errs() <-chan error { return c.errs }

// Close stops both loops and closes the underlying connection.
func (c *TCPCarrier) Close() error {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	return c.conn.Close()
}

func (c *TCPCarrier) recvLoop() {
	defer close(c.errs)
	buf := make([]byte, symbolWireSize)
	for {
		if _, err := io.ReadFull(c.conn, buf); err != nil {
			select {
			case c.errs <- fmt.Errorf("riolink/transport: recv: %w", err):
			default:
			}
			return
		}
		sym := decodeSymbol(buf)

		c.mu.Lock()
		c.stack.PortAddSymbol(sym)
		c.mu.Unlock()
	}
}

func (c *TCPCarrier) sendLoop() {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	buf := make([]byte, symbolWireSize)
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			sym := c.stack.PortGetSymbol()
			c.mu.Unlock()

			encodeSymbol(buf, sym)
			if _, err := c.conn.Write(buf); err != nil {
				c.log.Error("send failed", "err", err)
				select {
				case c.errs <- fmt.Errorf("riolink/transport: send: %w", err):
				default:
				}
				return
			}
		}
	}
}

func encodeSymbol(buf []byte, sym wire.Symbol) {
	buf[0] = byte(sym.Kind)
	binary.BigEndian.PutUint32(buf[1:], sym.Value)
}

func decodeSymbol(buf []byte) wire.Symbol {
	return wire.Symbol{Kind: wire.Kind(buf[0]), Value: binary.BigEndian.Uint32(buf[1:])}
}
