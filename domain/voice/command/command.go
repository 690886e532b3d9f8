package command

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Params maps parameter keys to unescaped values. A key sent without '='
// maps to the empty string.
type Params map[string]string

func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Require returns the value of key or ErrMissingParam.
func (p Params) Require(key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingParam, key)
	}
	return v, nil
}

// Uint parses key as an unsigned integer of the given bit size.
func (p Params) Uint(key string, bitSize int) (uint64, error) {
	v, err := p.Require(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(v, 10, bitSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidParam, key, v)
	}
	return n, nil
}

// Command is one protocol line: a name followed by one or more parameter
// groups separated by '|'.
type Command struct {
	Name    string
	Entries []Params
	// order keeps the key order of commands built locally so encoding is deterministic.
	order [][]string
}

// Params returns the first parameter group, or an empty one.
func (c Command) Params() Params {
	if len(c.Entries) == 0 {
		return Params{}
	}
	return c.Entries[0]
}

// Parse decodes a single command line. Lines without a name (every token
// containing '=') are notifications without a name and are rejected.
func Parse(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n\x00")
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, ErrEmpty
	}

	name, rest, _ := strings.Cut(line, " ")
	if strings.Contains(name, "=") {
		return Command{}, fmt.Errorf("%w: line starts with parameter %q", ErrEmpty, name)
	}
	cmd := Command{Name: name}
	for _, group := range strings.Split(rest, "|") {
		params := Params{}
		for _, token := range strings.Fields(group) {
			key, value, _ := strings.Cut(token, "=")
			params[key] = Unescape(value)
		}
		cmd.Entries = append(cmd.Entries, params)
	}
	return cmd, nil
}

// String encodes the command. Keys of locally built commands keep insertion
// order; parsed commands are encoded with sorted keys.
func (c Command) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	for i, params := range c.Entries {
		if i > 0 {
			b.WriteByte('|')
		}
		keys := c.keys(i)
		for j, key := range keys {
			if i == 0 || j > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(key)
			if v := params[key]; v != "" {
				b.WriteByte('=')
				b.WriteString(Escape(v))
			}
		}
	}
	return b.String()
}

func (c Command) keys(entry int) []string {
	if entry < len(c.order) && len(c.order[entry]) == len(c.Entries[entry]) {
		return c.order[entry]
	}
	keys := make([]string, 0, len(c.Entries[entry]))
	for k := range c.Entries[entry] {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Builder assembles a command keeping parameter order.
type Builder struct {
	cmd Command
}

func New(name string) *Builder {
	return &Builder{cmd: Command{
		Name:    name,
		Entries: []Params{{}},
		order:   [][]string{nil},
	}}
}

// Add sets key to value in the current parameter group.
func (b *Builder) Add(key, value string) *Builder {
	last := len(b.cmd.Entries) - 1
	if _, exists := b.cmd.Entries[last][key]; !exists {
		b.cmd.order[last] = append(b.cmd.order[last], key)
	}
	b.cmd.Entries[last][key] = value
	return b
}

func (b *Builder) AddUint(key string, value uint64) *Builder {
	return b.Add(key, strconv.FormatUint(value, 10))
}

// AddFlag adds a key without value.
func (b *Builder) AddFlag(key string) *Builder {
	return b.Add(key, "")
}

// Next starts a new '|' separated parameter group.
func (b *Builder) Next() *Builder {
	b.cmd.Entries = append(b.cmd.Entries, Params{})
	b.cmd.order = append(b.cmd.order, nil)
	return b
}

func (b *Builder) Build() Command {
	return b.cmd
}

func (b *Builder) String() string {
	return b.cmd.String()
}
