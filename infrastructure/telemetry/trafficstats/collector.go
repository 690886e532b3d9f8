// Package trafficstats counts the datagrams of a voice connection.
package trafficstats

import "sync/atomic"

type Snapshot struct {
	RXBytes   uint64
	TXBytes   uint64
	RXPackets uint64
	TXPackets uint64
	// Resent counts retransmitted reliable and init packets.
	Resent uint64
	// Dropped counts datagrams that failed authentication or parsing.
	Dropped uint64
}

// Collector is safe for concurrent use; the zero value is ready.
type Collector struct {
	rxBytes   atomic.Uint64
	txBytes   atomic.Uint64
	rxPackets atomic.Uint64
	txPackets atomic.Uint64
	resent    atomic.Uint64
	dropped   atomic.Uint64
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) AddRX(bytes int) {
	if bytes <= 0 {
		return
	}
	c.rxPackets.Add(1)
	c.rxBytes.Add(uint64(bytes))
}

func (c *Collector) AddTX(bytes int) {
	if bytes <= 0 {
		return
	}
	c.txPackets.Add(1)
	c.txBytes.Add(uint64(bytes))
}

func (c *Collector) AddResent(n int) {
	if n <= 0 {
		return
	}
	c.resent.Add(uint64(n))
}

func (c *Collector) AddDropped() {
	c.dropped.Add(1)
}

func (c *Collector) Reset() {
	c.rxBytes.Store(0)
	c.txBytes.Store(0)
	c.rxPackets.Store(0)
	c.txPackets.Store(0)
	c.resent.Store(0)
	c.dropped.Store(0)
}

func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		RXBytes:   c.rxBytes.Load(),
		TXBytes:   c.txBytes.Load(),
		RXPackets: c.rxPackets.Load(),
		TXPackets: c.txPackets.Load(),
		Resent:    c.resent.Load(),
		Dropped:   c.dropped.Load(),
	}
}
