package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// targetPass runs both reviews of one target and remembers which resources exist
// locally afterwards.
type targetPass struct {
	d      *Driver
	target *Target
	ids    *IdentifierMap
	report *Report
	log    *logrus.Entry

	linkOrder []string
	links     map[string]LinkedResource
}

func newTargetPass(d *Driver, t *Target, ids *IdentifierMap, report *Report, log *logrus.Entry) *targetPass {
	return &targetPass{
		d:      d,
		target: t,
		ids:    ids,
		report: report,
		log:    log,
		links:  map[string]LinkedResource{},
	}
}

// reviewLocal walks every local member of the target and fetches its external
// resource by full name.
func (p *targetPass) reviewLocal(ctx context.Context) error {
	t := p.target
	query := MemberQuery{TypeName: t.TypeName, ParentGUID: t.ParentGUID}
	page := Page{Size: t.pageSize()}
	for {
		members, next, err := p.d.Local.ListMembers(ctx, query, page)
		if err != nil {
			return fmt.Errorf("%s: list local members: %w", t.Kind, err)
		}
		for i := range members {
			if err := ctx.Err(); err != nil {
				return err
			}
			member := &members[i]
			if member.FullName == "" {
				member.FullName = JoinFullName(t.ParentKey, member.Properties.Name)
			}
			res, err := p.fetch(ctx, member.FullName)
			if err != nil {
				return &ActionError{Kind: t.Kind, FullName: member.FullName, QualifiedName: member.QualifiedName, Err: err}
			}
			if err := p.reconcile(ctx, PassReviewLocal, member, res); err != nil {
				return err
			}
		}
		if next == "" {
			return nil
		}
		if next == page.After {
			return fmt.Errorf("%s: member cursor did not advance past %q", t.Kind, next)
		}
		page.After = next
	}
}

// reviewRemote walks the external collection, skipping what is already mapped.
func (p *targetPass) reviewRemote(ctx context.Context) error {
	t := p.target
	resources, err := t.External.List(ctx, t.ParentKey)
	if err != nil {
		return fmt.Errorf("%s: list external resources under %s: %w", t.Kind, t.ParentKey, err)
	}
	for i := range resources {
		if err := ctx.Err(); err != nil {
			return err
		}
		res := &resources[i]
		if _, ok := p.ids.Lookup(res.FullName); ok {
			continue
		}
		qualifiedName := t.qualifiedName(res.FullName)
		member, err := p.d.Local.GetMemberByName(ctx, t.TypeName, qualifiedName)
		if err != nil {
			return &ActionError{Kind: t.Kind, FullName: res.FullName, QualifiedName: qualifiedName, Err: err}
		}
		if member != nil && member.FullName == "" {
			member.FullName = res.FullName
		}
		if err := p.reconcile(ctx, PassReviewRemote, member, res); err != nil {
			return err
		}
	}
	return nil
}

// fetch maps an absent external resource to nil.
func (p *targetPass) fetch(ctx context.Context, fullName string) (*Resource, error) {
	res, err := p.target.External.Get(ctx, fullName)
	if errors.Is(err, ErrResourceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// reconcile classifies one pair and, unless this is a dry run, applies the action.
func (p *targetPass) reconcile(ctx context.Context, pass string, member *Member, res *Resource) error {
	t := p.target
	decision := Classify(p.d.Policy, member, res)

	item := ItemOutcome{
		Kind:     t.Kind,
		Pass:     pass,
		Action:   decision.Action,
		Reason:   decision.Reason,
		Mismatch: decision.Mismatch,
	}
	x := &execution{local: p.d.Local, target: t, ids: p.ids, member: member, resource: res}
	name := ""
	if member != nil {
		item.FullName = member.FullName
		item.QualifiedName = member.QualifiedName
		x.guid = member.GUID
		name = member.Properties.Name
	}
	if res != nil {
		item.FullName = res.FullName
		if item.QualifiedName == "" {
			item.QualifiedName = t.qualifiedName(res.FullName)
		}
		if res.Name != "" {
			name = res.Name
		}
	}

	if decision.Mismatch {
		p.d.observer().ObserveMismatch(t.Kind)
		p.log.WithFields(logrus.Fields{
			"full_name":      item.FullName,
			"qualified_name": item.QualifiedName,
			"guid":           x.guid,
		}).Warn(decision.Reason)
	}

	outcome := OutcomeApplied
	if p.d.DryRun {
		outcome = OutcomePlanned
		if decision.Action == DeleteLocal {
			x.guid = ""
		}
	} else if err := execute(ctx, decision.Action, x); err != nil {
		item.GUID = x.guid
		item.Error = err.Error()
		p.report.add(item)
		p.d.observer().ObserveAction(t.Kind, decision.Action, OutcomeFailed)
		return &ActionError{Kind: t.Kind, FullName: item.FullName, QualifiedName: item.QualifiedName, Action: decision.Action, Err: err}
	}

	item.GUID = x.guid
	if item.GUID == "" && member != nil {
		item.GUID = member.GUID
	}
	if len(x.unapplied) > 0 {
		item.Reason += "; not applied externally: " + strings.Join(x.unapplied, ", ")
		p.log.WithFields(logrus.Fields{
			"full_name": item.FullName,
			"guid":      item.GUID,
			"fields":    x.unapplied,
		}).Warn("external catalog kept its own values")
	}
	p.report.add(item)
	p.d.observer().ObserveAction(t.Kind, decision.Action, outcome)
	if decision.Action != NoAction {
		p.log.WithFields(logrus.Fields{
			"pass":      pass,
			"full_name": item.FullName,
			"action":    decision.Action,
			"guid":      item.GUID,
		}).Debug(decision.Reason)
	}

	if x.guid != "" {
		p.ids.Record(item.FullName, x.guid)
		// A mismatched pair is unresolved: its children are not reconciled against it.
		if !decision.Mismatch {
			p.addLink(LinkedResource{FullName: item.FullName, Name: name, GUID: x.guid})
		}
	}
	return nil
}

func (p *targetPass) addLink(l LinkedResource) {
	if _, ok := p.links[l.FullName]; !ok {
		p.linkOrder = append(p.linkOrder, l.FullName)
	}
	p.links[l.FullName] = l
}

// linked returns the resources that exist locally, in discovery order.
func (p *targetPass) linked() []LinkedResource {
	out := make([]LinkedResource, 0, len(p.linkOrder))
	for _, fullName := range p.linkOrder {
		out = append(out, p.links[fullName])
	}
	return out
}

type passFunc struct {
	name string
	run  func(context.Context) error
}

func (p *targetPass) run(ctx context.Context) error {
	for _, step := range []passFunc{{PassReviewLocal, p.reviewLocal}, {PassReviewRemote, p.reviewRemote}} {
		started := time.Now()
		err := step.run(ctx)
		p.d.observer().ObservePass(p.target.Kind, step.name, time.Since(started))
		if err != nil {
			p.log.WithField("pass", step.name).WithError(err).Error("reconcile pass aborted")
			return err
		}
	}
	return nil
}
