// Package transport carries symbols between two Stacks. The engine core
// itself has no goroutines; everything in this package is the
// necessarily-concurrent ambient layer that sits outside it, grounded on
// session.go's Pipe and tcp.go's connection-pumping goroutines.
package transport

import (
	"time"

	riolink "github.com/mfkiwl/OpenRIO"
)

// Pipe wires two Stacks back to back over an in-process, full-duplex
// symbol channel, for tests and local demos. Every tick both directions
// exchange exactly one symbol, mirroring the synchronous get/add-symbol
// facade contract, run from a single pumping goroutine so the two
// Stacks are never touched concurrently.
type Pipe struct {
	a, b   *riolink.Stack
	ticker *time.Ticker
	done   chan struct{}
}

// NewPipe starts pumping symbols between a and b at the given tick
// interval. Call Close to stop.
func NewPipe(a, b *riolink.Stack, tick time.Duration) *Pipe {
	p := &Pipe{a: a, b: b, ticker: time.NewTicker(tick), done: make(chan struct{})}
	go p.run()
	return p
}

func (p *Pipe) run() {
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			p.step()
		}
	}
}

func (p *Pipe) step() {
	aSym := p.a.PortGetSymbol()
	p.b.PortAddSymbol(aSym)
	bSym := p.b.PortGetSymbol()
	p.a.PortAddSymbol(bSym)
}

// Close stops the pump. It does not close the underlying Stacks.
func (p *Pipe) Close() {
	p.ticker.Stop()
	close(p.done)
}

// Step runs exactly one symbol exchange in both directions, for tests that
// want deterministic control instead of a ticker.
func Step(a, b *riolink.Stack) {
	aSym := a.PortGetSymbol()
	b.PortAddSymbol(aSym)
	bSym := b.PortGetSymbol()
	a.PortAddSymbol(bSym)
}
