package ipalloc

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"net/netip"
	"strconv"
	"strings"
)

// minHostBits is the smallest host part that still leaves addresses after
// excluding the network and broadcast addresses.
const minHostBits = 2

// Logger is the logging interface used by the allocator.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Option configures an Allocator.
type Option func(*options)

type options struct {
	gateway string
	logger  Logger
}

// WithGateway sets an explicit gateway. It must lie inside the block.
func WithGateway(gateway string) Option {
	return func(o *options) { o.gateway = gateway }
}

// WithLogger sets the logger used for construction diagnostics.
func WithLogger(l Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Allocator hands out the host addresses of one IPv4 block in ascending order.
//
// Addresses below the cursor are issued, addresses at or above it are
// available. The cursor only moves forward through Next and back by one
// through RecycleLast, so callers get a reserve, try, roll back protocol
// without an allocation ledger.
//
// An Allocator is not safe for concurrent use; one campaign owns it.
type Allocator struct {
	prefix  netip.Prefix
	first   uint32 // first usable host
	total   int
	cursor  int
	gateway netip.Addr
	start   netip.Addr
}

// New builds an allocator for the block containing start.
//
// netmask accepts a dotted mask ("255.255.255.0"), a prefix length ("24")
// or a slash form ("/24"). Without WithGateway the gateway is the first host
// of the block. If start is not a usable host (for example the network
// address) issuance begins at the first host and a warning is logged.
func New(start, netmask string, opts ...Option) (*Allocator, error) {
	o := options{logger: noopLogger{}}
	for _, opt := range opts {
		opt(&o)
	}

	startAddr, err := netip.ParseAddr(strings.TrimSpace(start))
	if err != nil || !startAddr.Is4() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, start)
	}

	prefixLen, err := parseNetmask(netmask)
	if err != nil {
		return nil, err
	}

	prefix := netip.PrefixFrom(startAddr, prefixLen).Masked()
	hostBits := 32 - prefixLen
	if hostBits < minHostBits {
		return nil, fmt.Errorf("%w: %s", ErrInvalidNetwork, prefix)
	}

	network := toUint32(prefix.Addr())
	a := &Allocator{
		prefix: prefix,
		first:  network + 1,
		total:  int(uint64(1)<<hostBits - 2),
		start:  startAddr,
	}

	if o.gateway == "" {
		a.gateway = fromUint32(a.first)
	} else {
		gw, err := netip.ParseAddr(strings.TrimSpace(o.gateway))
		if err != nil || !gw.Is4() || !prefix.Contains(gw) {
			return nil, fmt.Errorf("%w: %q not in %s", ErrInvalidGateway, o.gateway, prefix)
		}
		a.gateway = gw
	}

	if idx, ok := a.indexOf(startAddr); ok {
		a.cursor = idx
	} else {
		o.logger.Warn("start address is not a usable host, starting from the first host",
			"start", startAddr.String(),
			"network", prefix.String(),
			"first_host", fromUint32(a.first).String(),
		)
	}

	return a, nil
}

// Next returns the address at the cursor and advances the cursor.
func (a *Allocator) Next() (netip.Addr, error) {
	if a.cursor >= a.total {
		return netip.Addr{}, fmt.Errorf("%w: all %d hosts of %s issued", ErrExhausted, a.total, a.prefix)
	}
	addr := a.addrAt(a.cursor)
	a.cursor++
	return addr, nil
}

// RecycleLast makes the most recently issued address available again.
// It reports false when nothing has been issued.
func (a *Allocator) RecycleLast() bool {
	if a.cursor <= 0 {
		return false
	}
	a.cursor--
	return true
}

// Current returns the most recently issued address, or false if none has been issued.
func (a *Allocator) Current() (netip.Addr, bool) {
	if a.cursor == 0 {
		return netip.Addr{}, false
	}
	return a.addrAt(a.cursor - 1), true
}

// Remaining returns the number of addresses still available.
func (a *Allocator) Remaining() int {
	return a.total - a.cursor
}

// Total returns the number of usable hosts in the block.
func (a *Allocator) Total() int {
	return a.total
}

// Issued returns the cursor position.
func (a *Allocator) Issued() int {
	return a.cursor
}

// Reset moves the cursor back to the first host of the block.
func (a *Allocator) Reset() {
	a.cursor = 0
}

// Gateway returns the gateway address for the block.
func (a *Allocator) Gateway() netip.Addr {
	return a.gateway
}

// Prefix returns the block.
func (a *Allocator) Prefix() netip.Prefix {
	return a.prefix
}

// Netmask returns the block's mask in dotted form.
func (a *Allocator) Netmask() string {
	return maskString(a.prefix.Bits())
}

// NetworkInfo summarizes the block and allocation progress.
type NetworkInfo struct {
	Network   netip.Addr `json:"network_address"`
	Broadcast netip.Addr `json:"broadcast_address"`
	Netmask   string     `json:"netmask"`
	Total     int        `json:"total_hosts"`
	Used      int        `json:"used_hosts"`
	Available int        `json:"available_hosts"`
	Gateway   netip.Addr `json:"gateway"`
}

// Info returns a NetworkInfo snapshot.
func (a *Allocator) Info() NetworkInfo {
	return NetworkInfo{
		Network:   a.prefix.Addr(),
		Broadcast: fromUint32(a.first + uint32(a.total)),
		Netmask:   a.Netmask(),
		Total:     a.total,
		Used:      a.cursor,
		Available: a.Remaining(),
		Gateway:   a.gateway,
	}
}

// String implements fmt.Stringer.
func (a *Allocator) String() string {
	return fmt.Sprintf("Allocator(start=%s, network=%s, issued=%d/%d)", a.start, a.prefix, a.cursor, a.total)
}

func (a *Allocator) addrAt(idx int) netip.Addr {
	return fromUint32(a.first + uint32(idx))
}

func (a *Allocator) indexOf(addr netip.Addr) (int, bool) {
	v := toUint32(addr)
	if v < a.first || uint64(v) >= uint64(a.first)+uint64(a.total) {
		return 0, false
	}
	return int(v - a.first), true
}

// parseNetmask returns the prefix length for a dotted mask, "24" or "/24".
func parseNetmask(s string) (int, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "/")
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidNetmask)
	}

	if !strings.Contains(s, ".") {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 || n > 32 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidNetmask, s)
		}
		return n, nil
	}

	m, err := netip.ParseAddr(s)
	if err != nil || !m.Is4() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNetmask, s)
	}
	v := toUint32(m)
	ones := bits.LeadingZeros32(^v)
	if v != maskBits(ones) {
		return 0, fmt.Errorf("%w: %q is not contiguous", ErrInvalidNetmask, s)
	}
	return ones, nil
}

func maskBits(ones int) uint32 {
	if ones == 0 {
		return 0
	}
	return ^uint32(0) << (32 - ones)
}

func maskString(ones int) string {
	return fromUint32(maskBits(ones)).String()
}

func toUint32(a netip.Addr) uint32 {
	b := a.As4()
	return binary.BigEndian.Uint32(b[:])
}

func fromUint32(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}
