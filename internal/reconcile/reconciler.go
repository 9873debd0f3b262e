package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"vaultctl/internal/chain"
	"vaultctl/internal/contracts"
	"vaultctl/internal/model"
	"vaultctl/internal/registry"
	"vaultctl/internal/roles"
	"vaultctl/internal/storage"
)

// Status is the outcome of reconciling one unit.
type Status string

const (
	StatusConverged Status = "converged"
	StatusApplied   Status = "applied"
	StatusWaiting   Status = "waiting"
	StatusPlanned   Status = "planned"
)

// Config tunes the reconciler.
type Config struct {
	Confirmations uint64
	MaxSteps      int
	DryRun        bool
}

// Outcome summarizes one unit run.
type Outcome struct {
	Unit    string
	Kind    string
	Status  Status
	Diff    Diff
	Actions []model.ActionRecord
}

// Reconciler drives units to their desired state. Reads are unrestricted;
// every mutation holds its signer's lock across send and wait.
type Reconciler struct {
	backend  chain.Backend
	resolver *roles.Resolver
	registry registry.Registry
	ledger   storage.Storage
	verifier Verifier
	cfg      Config
	logger   *zap.Logger
	locks    *signerLocks
	meter    metric.Meter
	metrics  *instruments
	now      func() time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

func WithRegistry(reg registry.Registry) Option {
	return func(r *Reconciler) { r.registry = reg }
}

func WithLedger(ledger storage.Storage) Option {
	return func(r *Reconciler) { r.ledger = ledger }
}

func WithVerifier(v Verifier) Option {
	return func(r *Reconciler) { r.verifier = v }
}

func WithMeter(m metric.Meter) Option {
	return func(r *Reconciler) { r.meter = m }
}

// New builds a reconciler over backend. resolver may be nil for dry runs.
func New(backend chain.Backend, resolver *roles.Resolver, cfg Config, opts ...Option) *Reconciler {
	if cfg.Confirmations == 0 {
		cfg.Confirmations = 1
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 4
	}
	r := &Reconciler{
		backend:  backend,
		resolver: resolver,
		cfg:      cfg,
		logger:   zap.NewNop(),
		locks:    newSignerLocks(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	r.metrics = newInstruments(r.meter)
	return r
}

// Reconcile brings unit to its desired state. A converged unit costs reads
// only. A failure leaves nothing assumed committed; a rerun starts from a
// fresh read.
func (r *Reconciler) Reconcile(ctx context.Context, unit Unit) (Outcome, error) {
	out, err := r.reconcile(ctx, unit)
	status := string(out.Status)
	if err != nil {
		status = "failed"
	}
	r.metrics.unit(ctx, unit.Kind(), status)
	return out, err
}

func (r *Reconciler) reconcile(ctx context.Context, unit Unit) (Outcome, error) {
	logger := r.logger.With(zap.String("unit", unit.ID()), zap.String("kind", unit.Kind()))
	env := r.env()
	out := Outcome{Unit: unit.ID(), Kind: unit.Kind()}

	var last *Mutation
	for step := 0; ; step++ {
		diff, err := unit.Diff(ctx, env)
		if err != nil {
			return out, fmt.Errorf("diff %s: %w", unit.ID(), err)
		}
		out.Diff = diff

		switch {
		case diff.Converged:
			if len(out.Actions) == 0 {
				logger.Info("already up to date", zap.String("value", diff.Current))
				out.Status = StatusConverged
			} else {
				logger.Info("converged", zap.String("value", diff.Current), zap.Int("actions", len(out.Actions)))
				out.Status = StatusApplied
			}
			if r.cfg.DryRun {
				return out, nil
			}
			return out, r.finalize(ctx, unit, env, out.Status == StatusApplied, logger)
		case diff.Waiting:
			logger.Info("waiting for external action", zap.String("current", diff.Current), zap.String("desired", diff.Desired))
			out.Status = StatusWaiting
			return out, nil
		case diff.Mutation == nil:
			return out, fmt.Errorf("unit %s: divergent state without a mutation", unit.ID())
		}

		if r.cfg.DryRun {
			logger.Info("planned",
				zap.String("current", diff.Current),
				zap.String("desired", diff.Desired),
				zap.String("role", string(diff.Mutation.Role)),
				zap.String("call", diff.Mutation.String()),
			)
			out.Status = StatusPlanned
			return out, nil
		}
		if step >= r.cfg.MaxSteps {
			return out, fmt.Errorf("unit %s: not converged after %d steps", unit.ID(), r.cfg.MaxSteps)
		}

		applied, err := r.apply(ctx, unit, env, diff.Mutation, last, &out, logger)
		if err != nil {
			return out, err
		}
		if applied != nil {
			last = applied
		}
	}
}

// apply takes the signer lock for m.Role, re-reads the unit under it and
// submits whatever the fresh diff requires. It returns the mutation that was
// confirmed, or nil when the fresh read made sending unnecessary.
func (r *Reconciler) apply(ctx context.Context, unit Unit, env Env, m *Mutation, last *Mutation, out *Outcome, logger *zap.Logger) (*Mutation, error) {
	signer, err := r.resolver.SignerFor(m.Role)
	if err != nil {
		return nil, err
	}

	unlock := r.locks.lock(signer.Address)
	defer unlock()

	fresh, err := unit.Diff(ctx, env)
	if err != nil {
		return nil, fmt.Errorf("diff %s: %w", unit.ID(), err)
	}
	if fresh.Converged || fresh.Waiting || fresh.Mutation == nil || fresh.Mutation.Role != m.Role {
		return nil, nil
	}
	m = fresh.Mutation

	if m.same(last) {
		return nil, fmt.Errorf("unit %s: %s confirmed but remote state did not change", unit.ID(), m)
	}

	record := model.ActionRecord{
		Unit:     unit.ID(),
		Kind:     unit.Kind(),
		Contract: m.Contract.Hex(),
		Method:   m.Method,
		Args:     contracts.FormatArgs(m.Args),
		Role:     string(m.Role),
		Signer:   signer.Address.Hex(),
	}

	fees, err := r.backend.SuggestFees(ctx)
	if err != nil {
		return nil, fmt.Errorf("fee oracle: %w", err)
	}

	logger.Info("sending",
		zap.String("current", fresh.Current),
		zap.String("desired", fresh.Desired),
		zap.String("role", string(m.Role)),
		zap.String("signer", signer.Address.Hex()),
		zap.String("call", m.String()),
	)
	start := r.now()
	hash, err := r.backend.Send(ctx, chain.SendRequest{
		Contract: m.Contract,
		ABI:      m.ABI,
		Method:   m.Method,
		Args:     m.Args,
		Signer:   signer,
		Fees:     fees,
	})
	if err != nil {
		record.Status = model.ActionFailed
		record.Error = err.Error()
		return nil, r.finishAction(ctx, out, record, time.Since(start), err)
	}
	record.TxHash = hash.Hex()

	receipt, err := r.backend.Wait(ctx, hash, r.cfg.Confirmations)
	if receipt != nil {
		if receipt.BlockNumber != nil {
			record.BlockNumber = receipt.BlockNumber.Uint64()
		}
		record.GasUsed = receipt.GasUsed
	}
	switch {
	case err == nil:
		record.Status = model.ActionConfirmed
	case errors.Is(err, chain.ErrReverted):
		record.Status = model.ActionReverted
		record.Error = err.Error()
		err = &model.RemoteCallError{Contract: record.Contract, Method: m.Method, Args: record.Args, Err: err}
	case errors.Is(err, model.ErrDivergenceTimeout):
		record.Status = model.ActionTimeout
		record.Error = err.Error()
	default:
		record.Status = model.ActionFailed
		record.Error = err.Error()
	}
	if err := r.finishAction(ctx, out, record, time.Since(start), err); err != nil {
		return nil, err
	}
	logger.Info("confirmed", zap.String("tx", record.TxHash), zap.Uint64("block", record.BlockNumber))
	return m, nil
}

func (r *Reconciler) finishAction(ctx context.Context, out *Outcome, record model.ActionRecord, waited time.Duration, cause error) error {
	record.RecordedAt = r.now().UTC().Format(time.RFC3339Nano)
	out.Actions = append(out.Actions, record)
	r.metrics.mutation(ctx, record.Method, record.Status, waited)

	if r.ledger != nil {
		if err := r.ledger.PutActionBatch(ctx, []model.ActionRecord{record}); err != nil {
			if cause != nil {
				return fmt.Errorf("%w (ledger write also failed: %v)", cause, err)
			}
			return fmt.Errorf("write action ledger: %w", err)
		}
	}
	if cause != nil {
		return fmt.Errorf("unit %s: %s: %w", record.Unit, record.Method, cause)
	}
	return nil
}

func (r *Reconciler) finalize(ctx context.Context, unit Unit, env Env, applied bool, logger *zap.Logger) error {
	f, ok := unit.(Finalizer)
	if !ok {
		return nil
	}
	outputs, err := f.Finalize(ctx, env)
	if err != nil {
		return fmt.Errorf("finalize %s: %w", unit.ID(), err)
	}
	for _, o := range outputs {
		if o.Name != "" && r.registry != nil {
			if err := r.registry.Record(ctx, o.Name, o.Address); err != nil {
				return fmt.Errorf("record %s: %w", o.Name, err)
			}
			logger.Info("recorded", zap.String("name", o.Name), zap.String("address", o.Address.Hex()))
		}
		if applied && r.verifier != nil {
			if err := r.verifier.Verify(ctx, unit.ID(), o); err != nil {
				logger.Warn("verification failed", zap.String("address", o.Address.Hex()), zap.Error(err))
			}
		}
	}
	return nil
}

func (r *Reconciler) env() Env {
	return Env{Reader: r.backend, Registry: r.registry}
}
