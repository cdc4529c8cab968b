package actions

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/Layr-Labs/eigenx-request-signer/pkg/encoder"
)

type ActionKind uint8

const (
	ActionKindRegister ActionKind = iota + 1
	ActionKindBuyShare
	ActionKindSellShare
	ActionKindRenewOwnership
)

type actionDefinition struct {
	name     string
	selector encoder.Selector
}

// Selectors match the verifier contract's entry points. Adding an action is a
// change to this table only.
var actionTable = map[ActionKind]actionDefinition{
	ActionKindRegister:       {name: "register", selector: mustParseSelector("8580974c")},
	ActionKindBuyShare:       {name: "buy-share", selector: mustParseSelector("bad9a87d")},
	ActionKindSellShare:      {name: "sell-share", selector: mustParseSelector("68670601")},
	ActionKindRenewOwnership: {name: "renew-ownership", selector: mustParseSelector("cb62320d")},
}

func mustParseSelector(s string) encoder.Selector {
	sel, err := encoder.ParseSelector(s)
	if err != nil {
		panic(err)
	}
	return sel
}

func (k ActionKind) String() string {
	if def, ok := actionTable[k]; ok {
		return def.name
	}
	return fmt.Sprintf("unknown(%d)", uint8(k))
}

// Selector returns the 4-byte selector bound to the kind.
func (k ActionKind) Selector() (encoder.Selector, error) {
	def, ok := actionTable[k]
	if !ok {
		return encoder.Selector{}, fmt.Errorf("unsupported action kind: %d", uint8(k))
	}
	return def.selector, nil
}

// ParseActionKind maps names like "buy-share" (or "buyShare", "BUY_SHARE") to a kind.
func ParseActionKind(s string) (ActionKind, error) {
	normalized := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(s))
	for kind, def := range actionTable {
		if strings.ReplaceAll(def.name, "-", "") == normalized {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown action %q, supported: %s", s, strings.Join(SupportedActionNames(), ", "))
}

// AllActionKinds returns every kind in declaration order.
func AllActionKinds() []ActionKind {
	return []ActionKind{
		ActionKindRegister,
		ActionKindBuyShare,
		ActionKindSellShare,
		ActionKindRenewOwnership,
	}
}

func SupportedActionNames() []string {
	kinds := AllActionKinds()
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, k.String())
	}
	return names
}

// Clock supplies the current time in epoch seconds.
type Clock interface {
	NowUnix() uint64
}

type SystemClock struct{}

func (SystemClock) NowUnix() uint64 {
	return uint64(time.Now().Unix())
}

// FixedClock always reports the same instant.
type FixedClock uint64

func (c FixedClock) NowUnix() uint64 {
	return uint64(c)
}

type buildOptions struct {
	timestamp *uint64
}

type Option func(*buildOptions)

// WithTimestamp pins the request timestamp instead of reading the clock.
func WithTimestamp(ts uint64) Option {
	return func(o *buildOptions) {
		o.timestamp = &ts
	}
}

// Dispatcher binds each action kind to its selector and timestamp source and
// hands the request to the encoder. It holds no state besides the clock.
type Dispatcher struct {
	clock Clock
}

func NewDispatcher(clock Clock) *Dispatcher {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Dispatcher{clock: clock}
}

// Register carries no amount; zero is encoded.
func (d *Dispatcher) Register(name string, targetAddress string, opts ...Option) (*encoder.PackedPayload, error) {
	return d.Build(ActionKindRegister, name, nil, targetAddress, opts...)
}

func (d *Dispatcher) BuyShare(name string, amount *big.Int, targetAddress string, opts ...Option) (*encoder.PackedPayload, error) {
	return d.Build(ActionKindBuyShare, name, amount, targetAddress, opts...)
}

func (d *Dispatcher) SellShare(name string, amount *big.Int, targetAddress string, opts ...Option) (*encoder.PackedPayload, error) {
	return d.Build(ActionKindSellShare, name, amount, targetAddress, opts...)
}

// RenewOwnership passes amount through untouched; any unit scaling is the caller's.
func (d *Dispatcher) RenewOwnership(name string, amount *big.Int, targetAddress string, opts ...Option) (*encoder.PackedPayload, error) {
	return d.Build(ActionKindRenewOwnership, name, amount, targetAddress, opts...)
}

// Build encodes a request for any kind. Register ignores amount.
func (d *Dispatcher) Build(kind ActionKind, name string, amount *big.Int, targetAddress string, opts ...Option) (*encoder.PackedPayload, error) {
	selector, err := kind.Selector()
	if err != nil {
		return nil, err
	}

	o := &buildOptions{}
	for _, opt := range opts {
		opt(o)
	}

	ts := d.clock.NowUnix()
	if o.timestamp != nil {
		ts = *o.timestamp
	}

	if kind == ActionKindRegister {
		amount = nil
	}

	return encoder.Encode(&encoder.Request{
		Selector:      selector,
		Name:          name,
		Amount:        amount,
		TargetAddress: targetAddress,
		Timestamp:     ts,
	})
}
