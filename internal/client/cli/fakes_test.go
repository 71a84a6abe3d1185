package cli

import (
	"bufio"
	"bytes"
	"context"
	"strings"

	"github.com/dmitrijs2005/papershelf/internal/api"
	"github.com/dmitrijs2005/papershelf/internal/client/connectivity"
	"github.com/dmitrijs2005/papershelf/internal/client/notify"
	"github.com/dmitrijs2005/papershelf/internal/client/syncer"
	"github.com/dmitrijs2005/papershelf/internal/common"
)

type fakeAuth struct {
	user     string
	pass     string
	loggedIn bool

	regErr    error
	loginErr  error
	logoutErr error
}

func (f *fakeAuth) Register(_ context.Context, u, p string) error {
	f.user, f.pass = u, p
	return f.regErr
}
func (f *fakeAuth) Login(_ context.Context, u, p string) error {
	f.user, f.pass = u, p
	if f.loginErr == nil {
		f.loggedIn = true
	}
	return f.loginErr
}
func (f *fakeAuth) Logout(context.Context) error {
	if f.logoutErr == nil {
		f.loggedIn = false
	}
	return f.logoutErr
}
func (f *fakeAuth) Ping(context.Context) error           { return nil }
func (f *fakeAuth) IsAuthenticated(context.Context) bool { return f.loggedIn }
func (f *fakeAuth) Username(context.Context) string      { return f.user }

type fakeRecords struct {
	data   map[api.Entity]map[int64]api.Record
	nextID int64
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{data: map[api.Entity]map[int64]api.Record{}}
}

func (f *fakeRecords) Add(_ context.Context, e api.Entity, rec api.Record) (api.Record, error) {
	f.nextID++
	out := rec.Clone()
	out["id"] = f.nextID
	if f.data[e] == nil {
		f.data[e] = map[int64]api.Record{}
	}
	f.data[e][f.nextID] = out
	return out, nil
}

func (f *fakeRecords) Update(_ context.Context, e api.Entity, id int64, patch api.Record) (api.Record, error) {
	rec, ok := f.data[e][id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	for k, v := range patch {
		rec[k] = v
	}
	return rec, nil
}

func (f *fakeRecords) Delete(_ context.Context, e api.Entity, id int64) error {
	if _, ok := f.data[e][id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.data[e], id)
	return nil
}

func (f *fakeRecords) GetAll(_ context.Context, e api.Entity) ([]api.Record, error) {
	var out []api.Record
	for id := int64(1); id <= f.nextID; id++ {
		if r, ok := f.data[e][id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRecords) GetByID(_ context.Context, e api.Entity, id int64) (api.Record, error) {
	r, ok := f.data[e][id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return r, nil
}

func (f *fakeRecords) GetByExternalID(_ context.Context, x string) (api.Record, error) {
	for _, r := range f.data[api.Papers] {
		if doi, _ := r["doi"].(string); strings.EqualFold(doi, x) {
			return r, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeRecords) Count(_ context.Context, e api.Entity) (int, error) {
	return len(f.data[e]), nil
}

type fakeEngine struct {
	enabled   bool
	refreshed int
	syncs     int
	syncErr   error
	pending   *api.ChangeSet
	status    *api.Status
	statusErr error
	pdfURL    string
}

func (f *fakeEngine) SyncNow(context.Context) (*syncer.Result, error) {
	f.syncs++
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	return &syncer.Result{Mode: syncer.ModeIncremental}, nil
}
func (f *fakeEngine) SetSyncEnabled(_ context.Context, v bool) { f.enabled = v }
func (f *fakeEngine) SyncEnabled() bool                        { return f.enabled }
func (f *fakeEngine) Refresh(context.Context)                  { f.refreshed++ }
func (f *fakeEngine) Pending(context.Context) (*api.ChangeSet, error) {
	if f.pending == nil {
		return api.NewChangeSet(), nil
	}
	return f.pending, nil
}
func (f *fakeEngine) RemoteStatus(context.Context) (*api.Status, error) {
	return f.status, f.statusErr
}
func (f *fakeEngine) PaperPDFURL(context.Context, int64) (string, error) {
	return f.pdfURL, nil
}
func (f *fakeEngine) ConnectivityStatus() connectivity.Status { return connectivity.StatusOnline }

type testApp struct {
	*App
	auth    *fakeAuth
	records *fakeRecords
	eng     *fakeEngine
	console *notify.Console
	out     *bytes.Buffer
}

func newTestApp(input string) *testApp {
	out := &bytes.Buffer{}
	ta := &testApp{
		auth:    &fakeAuth{},
		records: newFakeRecords(),
		eng:     &fakeEngine{enabled: true},
		console: notify.NewConsole(out),
		out:     out,
	}
	ta.App = &App{
		authService:    ta.auth,
		recordsService: ta.records,
		engine:         ta.eng,
		actions:        ta.console,
		reader:         bufio.NewReader(strings.NewReader(input)),
		out:            out,
	}
	return ta
}
