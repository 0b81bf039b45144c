// Package verify checks the state of deployed components after a run.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/ubexdeploy/internal/deploy"
	"github.com/Bidon15/ubexdeploy/internal/directory"
)

// Sentinel errors
var (
	ErrNotDeployed     = errors.New("verify: component not deployed")
	ErrAssertionFailed = errors.New("verify: assertion failed")
)

// Handle references a deployed instance.
type Handle struct {
	Name    string
	Address common.Address
}

// Reader queries read-only accessors of deployed components.
type Reader interface {
	ReadAccessor(ctx context.Context, handle Handle, accessor string) (any, error)
}

// Lookup returns the currently deployed instance of a component.
type Lookup interface {
	Get(ctx context.Context, network, name string) (deploy.Deployment, error)
}

// Assertion is a single expected-state check.
type Assertion struct {
	Component string
	Accessor  string
	Expected  any
	Message   string
}

// Recorder is notified of every check outcome.
type Recorder interface {
	ObserveVerification(err error)
}

// Harness resolves deployed instances by name and checks their state.
type Harness struct {
	lookup   Lookup
	reader   Reader
	network  string
	logger   *slog.Logger
	recorder Recorder
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithRecorder sets the outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(h *Harness) { h.recorder = r }
}

// NewHarness creates a harness reading instances of network from lookup.
func NewHarness(lookup Lookup, reader Reader, network string, opts ...Option) *Harness {
	h := &Harness{
		lookup:  lookup,
		reader:  reader,
		network: network,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// GetDeployedInstance returns the handle of the most recent deployment of name.
func (h *Harness) GetDeployedInstance(ctx context.Context, name string) (Handle, error) {
	d, err := h.lookup.Get(ctx, h.network, name)
	if errors.Is(err, directory.ErrNotFound) {
		return Handle{}, fmt.Errorf("%w: %s on %s", ErrNotDeployed, name, h.network)
	}
	if err != nil {
		return Handle{}, fmt.Errorf("lookup %s: %w", name, err)
	}
	return Handle{Name: d.Name, Address: d.Address}, nil
}

// ReadState invokes accessor on the instance behind handle.
func (h *Harness) ReadState(ctx context.Context, handle Handle, accessor string) (any, error) {
	v, err := h.reader.ReadAccessor(ctx, handle, accessor)
	if err != nil {
		return nil, fmt.Errorf("read %s.%s: %w", handle.Name, accessor, err)
	}
	return v, nil
}

// AssertEquals returns ErrAssertionFailed labelled with message when actual
// and expected differ.
func AssertEquals(actual, expected any, message string) error {
	if equal(actual, expected) {
		return nil
	}
	return fmt.Errorf("%w: %s: expected %v, got %v", ErrAssertionFailed, message, expected, actual)
}

// Check runs one assertion against the currently deployed instance.
func (h *Harness) Check(ctx context.Context, a Assertion) (err error) {
	if h.recorder != nil {
		defer func() { h.recorder.ObserveVerification(err) }()
	}

	handle, err := h.GetDeployedInstance(ctx, a.Component)
	if err != nil {
		return err
	}
	actual, err := h.ReadState(ctx, handle, a.Accessor)
	if err != nil {
		return err
	}

	message := a.Message
	if message == "" {
		message = fmt.Sprintf("%s.%s", a.Component, a.Accessor)
	}
	if err := AssertEquals(actual, a.Expected, message); err != nil {
		h.logger.Error("verification failed",
			slog.String("component", a.Component),
			slog.String("accessor", a.Accessor),
			slog.String("error", err.Error()),
		)
		return err
	}

	h.logger.Info("verification passed",
		slog.String("component", a.Component),
		slog.String("address", handle.Address.Hex()),
		slog.String("accessor", a.Accessor),
	)
	return nil
}

// equal compares accessor values. Addresses compare equal to their hex
// form regardless of checksum casing.
func equal(actual, expected any) bool {
	if a, ok := asAddress(actual); ok {
		if e, ok := asAddress(expected); ok {
			return a == e
		}
	}
	return reflect.DeepEqual(actual, expected)
}

func asAddress(v any) (common.Address, bool) {
	switch t := v.(type) {
	case common.Address:
		return t, true
	case *common.Address:
		if t == nil {
			return common.Address{}, false
		}
		return *t, true
	case string:
		if common.IsHexAddress(t) && strings.HasPrefix(strings.ToLower(t), "0x") {
			return common.HexToAddress(t), true
		}
	}
	return common.Address{}, false
}
