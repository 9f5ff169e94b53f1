package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"
)

type testClock struct {
	t time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

// Now advances one second per call so every write is strictly ordered.
func (c *testClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

type fakeEntity struct {
	seq          int
	member       Member
	parentGUID   string
	relationship string
	template     string
}

type fakeLocal struct {
	clock    *testClock
	seq      int
	entities []*fakeEntity

	listErr   map[string]error
	createErr error
	calls     []string
	pageSizes []int
}

func newFakeLocal(clock *testClock) *fakeLocal {
	return &fakeLocal{clock: clock, listErr: map[string]error{}}
}

func (f *fakeLocal) add(typeName, qualifiedName, fullName, parentGUID string, props EntityProperties, corr *Correlation) string {
	f.seq++
	guid := fmt.Sprintf("guid-%d", f.seq)
	f.entities = append(f.entities, &fakeEntity{
		seq:        f.seq,
		parentGUID: parentGUID,
		member: Member{
			GUID:          guid,
			TypeName:      typeName,
			QualifiedName: qualifiedName,
			FullName:      fullName,
			Properties:    props,
			UpdatedAt:     f.clock.Now(),
			Correlation:   corr,
		},
	})
	return guid
}

func (f *fakeLocal) find(guid string) *fakeEntity {
	for _, e := range f.entities {
		if e.member.GUID == guid {
			return e
		}
	}
	return nil
}

func (f *fakeLocal) byFullName(fullName string) *fakeEntity {
	for _, e := range f.entities {
		if e.member.FullName == fullName {
			return e
		}
	}
	return nil
}

func (f *fakeLocal) touch(guid string, mutate func(*EntityProperties)) {
	e := f.find(guid)
	mutate(&e.member.Properties)
	e.member.UpdatedAt = f.clock.Now()
}

func snapshot(e *fakeEntity) Member {
	m := e.member
	if m.Correlation != nil {
		c := *m.Correlation
		m.Correlation = &c
	}
	return m
}

func (f *fakeLocal) ListMembers(_ context.Context, query MemberQuery, page Page) ([]Member, string, error) {
	f.calls = append(f.calls, "list:"+query.TypeName+":"+query.ParentGUID)
	f.pageSizes = append(f.pageSizes, page.Size)
	if err := f.listErr[query.ParentGUID]; err != nil {
		return nil, "", err
	}
	after := 0
	if page.After != "" {
		n, err := strconv.Atoi(page.After)
		if err != nil {
			return nil, "", err
		}
		after = n
	}
	var matching []*fakeEntity
	for _, e := range f.entities {
		if e.seq <= after || e.member.TypeName != query.TypeName {
			continue
		}
		if query.ParentGUID != "" && e.parentGUID != query.ParentGUID {
			continue
		}
		matching = append(matching, e)
	}
	next := ""
	if len(matching) > page.Size {
		matching = matching[:page.Size]
		next = strconv.Itoa(matching[len(matching)-1].seq)
	}
	out := make([]Member, 0, len(matching))
	for _, e := range matching {
		out = append(out, snapshot(e))
	}
	return out, next, nil
}

func (f *fakeLocal) GetMemberByName(_ context.Context, typeName string, qualifiedName string) (*Member, error) {
	f.calls = append(f.calls, "get:"+qualifiedName)
	for _, e := range f.entities {
		if e.member.TypeName == typeName && e.member.QualifiedName == qualifiedName {
			m := snapshot(e)
			return &m, nil
		}
	}
	return nil, nil
}

func (f *fakeLocal) CreateEntity(_ context.Context, req EntityRequest) (string, error) {
	f.calls = append(f.calls, "create:"+req.QualifiedName)
	if f.createErr != nil {
		return "", f.createErr
	}
	guid := f.add(req.TypeName, req.QualifiedName, req.Properties.FullName, req.ParentGUID, req.Properties, nil)
	e := f.find(guid)
	e.relationship = req.RelationshipType
	e.template = req.TemplateGUID
	return guid, nil
}

func (f *fakeLocal) UpdateEntity(_ context.Context, guid string, props EntityProperties) error {
	f.calls = append(f.calls, "update:"+guid)
	e := f.find(guid)
	if e == nil {
		return fmt.Errorf("no entity %s", guid)
	}
	e.member.Properties = props
	e.member.UpdatedAt = f.clock.Now()
	return nil
}

func (f *fakeLocal) DeleteEntity(_ context.Context, guid string) error {
	f.calls = append(f.calls, "delete:"+guid)
	for i, e := range f.entities {
		if e.member.GUID == guid {
			f.entities = append(f.entities[:i], f.entities[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("no entity %s", guid)
}

func (f *fakeLocal) RecordExternalIdentifier(_ context.Context, guid string, correlation Correlation) error {
	e := f.find(guid)
	if e == nil {
		return fmt.Errorf("no entity %s", guid)
	}
	if e.member.Correlation != nil {
		correlation.LocalSyncedAt = e.member.Correlation.LocalSyncedAt
	}
	e.member.Correlation = &correlation
	return nil
}

func (f *fakeLocal) ConfirmSync(_ context.Context, guid string) error {
	e := f.find(guid)
	if e == nil || e.member.Correlation == nil {
		return fmt.Errorf("no correlation for %s", guid)
	}
	syncedAt := e.member.UpdatedAt
	e.member.Correlation.LocalSyncedAt = &syncedAt
	return nil
}

type fakeExternal struct {
	clock     *testClock
	idPrefix  string
	idSeq     int
	resources map[string]*Resource

	getErr  map[string]error
	listErr error

	gets    int
	created []string
	updated []string
	deleted []string
}

func newFakeExternal(clock *testClock, idPrefix string) *fakeExternal {
	return &fakeExternal{
		clock:     clock,
		idPrefix:  idPrefix,
		resources: map[string]*Resource{},
		getErr:    map[string]error{},
	}
}

func (f *fakeExternal) put(res Resource) *Resource {
	r := res
	f.resources[r.FullName] = &r
	return &r
}

func (f *fakeExternal) Get(_ context.Context, fullName string) (*Resource, error) {
	f.gets++
	if err := f.getErr[fullName]; err != nil {
		return nil, err
	}
	r, ok := f.resources[fullName]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", fullName, ErrResourceNotFound)
	}
	c := *r
	return &c, nil
}

func (f *fakeExternal) List(_ context.Context, parentKey string) ([]Resource, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []Resource
	for _, r := range f.resources {
		if r.ParentKey == parentKey {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (f *fakeExternal) Create(_ context.Context, spec ResourceSpec) (*Resource, error) {
	f.idSeq++
	now := f.clock.Now()
	r := f.put(Resource{
		FullName:        JoinFullName(spec.ParentKey, spec.Name),
		ExternalID:      fmt.Sprintf("%s-%d", f.idPrefix, f.idSeq),
		Name:            spec.Name,
		ParentKey:       spec.ParentKey,
		Comment:         spec.Comment,
		StorageLocation: spec.StorageLocation,
		VolumeType:      spec.VolumeType,
		Properties:      spec.Properties,
		CreatedAt:       &now,
		UpdatedAt:       &now,
	})
	f.created = append(f.created, r.FullName)
	c := *r
	return &c, nil
}

func (f *fakeExternal) Update(_ context.Context, fullName string, spec ResourceSpec) (*Resource, error) {
	r, ok := f.resources[fullName]
	if !ok {
		return nil, fmt.Errorf("update %s: %w", fullName, ErrResourceNotFound)
	}
	now := f.clock.Now()
	r.Comment = spec.Comment
	r.Properties = spec.Properties
	r.StorageLocation = spec.StorageLocation
	r.UpdatedAt = &now
	f.updated = append(f.updated, fullName)
	c := *r
	return &c, nil
}

func (f *fakeExternal) Delete(_ context.Context, fullName string) error {
	if _, ok := f.resources[fullName]; !ok {
		return fmt.Errorf("delete %s: %w", fullName, ErrResourceNotFound)
	}
	delete(f.resources, fullName)
	f.deleted = append(f.deleted, fullName)
	return nil
}

// touchExternal changes a resource the way another client of the catalog would.
func (f *fakeExternal) touchExternal(fullName string, comment string) {
	r := f.resources[fullName]
	now := f.clock.Now()
	r.Comment = &comment
	r.UpdatedAt = &now
}

type recordingObserver struct {
	actions    map[string]int
	passes     []string
	mismatches int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{actions: map[string]int{}}
}

func (o *recordingObserver) ObserveAction(kind string, action Action, outcome string) {
	o.actions[kind+"/"+string(action)+"/"+outcome]++
}

func (o *recordingObserver) ObservePass(kind string, pass string, _ time.Duration) {
	o.passes = append(o.passes, kind+"/"+pass)
}

func (o *recordingObserver) ObserveMismatch(string) {
	o.mismatches++
}
