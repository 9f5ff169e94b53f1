package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	OutcomeApplied = "applied"
	OutcomePlanned = "planned"
	OutcomeFailed  = "failed"
)

// Observer receives run measurements. metrics.Recorder is the production one.
type Observer interface {
	ObserveAction(kind string, action Action, outcome string)
	ObservePass(kind string, pass string, elapsed time.Duration)
	ObserveMismatch(kind string)
}

type nopObserver struct{}

func (nopObserver) ObserveAction(string, Action, string)      {}
func (nopObserver) ObservePass(string, string, time.Duration) {}
func (nopObserver) ObserveMismatch(string)                    {}

// Driver runs reconciliations against one local store under one policy.
type Driver struct {
	Local    LocalStore
	Policy   Policy
	Logger   *logrus.Logger
	Observer Observer
	// DryRun classifies without applying any action.
	DryRun bool
}

// Run reconciles root and then every child target it yields. A failing target
// stops with its children skipped while its siblings go on; the returned error
// joins every target failure. Invalid parameters fail before any store access.
func (d *Driver) Run(ctx context.Context, root *Target) (*Report, error) {
	if d.Local == nil {
		return nil, fmt.Errorf("%w: local store is required", ErrInvalidParameter)
	}
	if !d.Policy.valid() {
		return nil, fmt.Errorf("%w: unknown sync policy %d", ErrInvalidParameter, int(d.Policy))
	}
	if err := root.validate(); err != nil {
		return nil, err
	}

	report := newReport(d.Policy, d.DryRun)
	ids := NewIdentifierMap()
	errs := d.runTarget(ctx, root, ids, report)
	report.FinishedAt = time.Now()

	d.logger().WithFields(logrus.Fields{
		"policy":     d.Policy.String(),
		"dry_run":    d.DryRun,
		"changes":    report.Changes(),
		"mismatches": report.Mismatches,
		"failures":   len(errs),
	}).Info("reconciliation finished")
	return report, errors.Join(errs...)
}

func (d *Driver) runTarget(ctx context.Context, t *Target, ids *IdentifierMap, report *Report) []error {
	log := d.logger().WithFields(logrus.Fields{
		"kind":    t.Kind,
		"parent":  t.ParentKey,
		"policy":  d.Policy.String(),
		"dry_run": d.DryRun,
	})
	p := newTargetPass(d, t, ids, report, log)
	if err := p.run(ctx); err != nil {
		return []error{err}
	}
	if t.Children == nil {
		return nil
	}

	var errs []error
	for _, parent := range p.linked() {
		if err := ctx.Err(); err != nil {
			return append(errs, err)
		}
		child := t.Children(parent)
		if child == nil {
			continue
		}
		if err := child.validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s under %s: %w", child.Kind, parent.FullName, err))
			continue
		}
		errs = append(errs, d.runTarget(ctx, child, ids, report)...)
	}
	return errs
}

func (d *Driver) logger() *logrus.Logger {
	if d.Logger == nil {
		return logrus.StandardLogger()
	}
	return d.Logger
}

func (d *Driver) observer() Observer {
	if d.Observer == nil {
		return nopObserver{}
	}
	return d.Observer
}
