package packet

// Counters holds the outgoing (packetId, generation) pair of every packet
// type. It is owned by exactly one connection and is not safe for
// concurrent use.
type Counters struct {
	ids         [TypeCount]uint16
	generations [TypeCount]uint32
}

// Next returns the id and generation for the next packet of type t and
// advances the counter. The id wraps at 65536, bumping the generation.
func (c *Counters) Next(t Type) (uint16, uint32) {
	id, gen := c.ids[t], c.generations[t]
	c.ids[t]++
	if c.ids[t] == 0 {
		c.generations[t]++
	}
	return id, gen
}

// Peek returns the values Next would return without advancing.
func (c *Counters) Peek(t Type) (uint16, uint32) {
	return c.ids[t], c.generations[t]
}

func (c *Counters) Set(t Type, id uint16, gen uint32) {
	c.ids[t] = id
	c.generations[t] = gen
}

func (c *Counters) Reset() {
	c.ids = [TypeCount]uint16{}
	c.generations = [TypeCount]uint32{}
}

// IncomingGenerations tracks the generation of each incoming packet type.
// The peer never sends its generation, so it is inferred from the id jumping
// back across the half-way point of the sequence space.
type IncomingGenerations struct {
	lastIDs     [TypeCount]uint16
	generations [TypeCount]uint32
	seen        [TypeCount]bool
}

const halfSequence = 0x8000

// Estimate returns the generation a packet with the given id belongs to,
// without recording it.
func (g *IncomingGenerations) Estimate(t Type, id uint16) uint32 {
	if !g.seen[t] {
		return g.generations[t]
	}
	last, gen := g.lastIDs[t], g.generations[t]
	switch {
	case id < last && last-id > halfSequence:
		return gen + 1
	case id > last && id-last > halfSequence && gen > 0:
		return gen - 1
	default:
		return gen
	}
}

// Commit records a packet that was successfully authenticated.
func (g *IncomingGenerations) Commit(t Type, id uint16) {
	gen := g.Estimate(t, id)
	if !g.seen[t] || gen > g.generations[t] || (gen == g.generations[t] && id > g.lastIDs[t]) {
		g.lastIDs[t] = id
		g.generations[t] = gen
		g.seen[t] = true
	}
}

func (g *IncomingGenerations) Reset() {
	*g = IncomingGenerations{}
}
