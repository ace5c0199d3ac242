package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/postfacto/internal/common"
	"github.com/dmitrijs2005/postfacto/internal/dbx"
	"github.com/dmitrijs2005/postfacto/internal/logging"
	"github.com/dmitrijs2005/postfacto/internal/server/models"
	"github.com/dmitrijs2005/postfacto/internal/server/repositories/actionitems"
	"github.com/dmitrijs2005/postfacto/internal/server/repositories/archives"
	"github.com/dmitrijs2005/postfacto/internal/server/repositories/items"
	"github.com/dmitrijs2005/postfacto/internal/server/repositories/retros"
	"github.com/dmitrijs2005/postfacto/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/postfacto/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

// expectTx queues n committed transactions.
func expectTx(mock sqlmock.Sqlmock, n int) {
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
}

var testLogger = logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

// memStore is an in-memory stand-in for the database shared by all fake
// repositories. fail makes the named operation return the given error.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	retros   map[int64]*models.Retro
	items    map[int64]*models.Item
	actions  map[int64]*models.ActionItem
	archives map[int64]*models.Archive
	users    map[int64]*models.User
	grants   map[string]map[string]time.Time
	fail     map[string]error
	now      time.Time
}

func newMemStore() *memStore {
	return &memStore{
		retros:   map[int64]*models.Retro{},
		items:    map[int64]*models.Item{},
		actions:  map[int64]*models.ActionItem{},
		archives: map[int64]*models.Archive{},
		users:    map[int64]*models.User{},
		grants:   map[string]map[string]time.Time{},
		fail:     map[string]error{},
		now:      time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) failed(op string) error {
	return s.fail[op]
}

func (s *memStore) RunMigrations(context.Context, *sql.DB) error { return nil }
func (s *memStore) Retros(dbx.DBTX) retros.Repository            { return memRetros{s} }
func (s *memStore) Items(dbx.DBTX) items.Repository              { return memItems{s} }
func (s *memStore) ActionItems(dbx.DBTX) actionitems.Repository  { return memActions{s} }
func (s *memStore) Archives(dbx.DBTX) archives.Repository        { return memArchives{s} }
func (s *memStore) Users(dbx.DBTX) users.Repository              { return memUsers{s} }
func (s *memStore) Sessions(dbx.DBTX) sessions.Repository        { return memSessions{s} }

// seedRetro stores a retro directly.
func (s *memStore) seedRetro(r models.Retro) *models.Retro {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.id()
	s.retros[r.ID] = &r
	cp := r
	return &cp
}

func (s *memStore) seedItem(it models.Item) *models.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	it.ID = s.id()
	if it.Category == "" {
		it.Category = models.CategoryHappy
	}
	s.items[it.ID] = &it
	cp := it
	return &cp
}

func (s *memStore) seedAction(a models.ActionItem) *models.ActionItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.id()
	s.actions[a.ID] = &a
	cp := a
	return &cp
}

func (s *memStore) retro(id int64) *models.Retro {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.retros[id]
	return &cp
}

func (s *memStore) item(id int64) *models.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil
	}
	cp := *it
	return &cp
}

func (s *memStore) action(id int64) *models.ActionItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.actions[id]
	return &cp
}

func (s *memStore) hasGrant(sessionID, slug string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.grants[sessionID][slug]
	return ok
}

// --- retros ---

type memRetros struct{ s *memStore }

func (r memRetros) slugTaken(slug string, except int64) bool {
	for _, x := range r.s.retros {
		if x.Slug == slug && x.ID != except {
			return true
		}
	}
	return false
}

func (r memRetros) Create(_ context.Context, retro *models.Retro) (*models.Retro, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failed("retros.Create"); err != nil {
		return nil, err
	}
	if r.slugTaken(retro.Slug, 0) {
		return nil, retros.ErrSlugTaken
	}
	cp := *retro
	cp.ID = r.s.id()
	cp.CreatedAt, cp.UpdatedAt = r.s.now, r.s.now
	r.s.retros[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r memRetros) GetBySlug(_ context.Context, slug string) (*models.Retro, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, x := range r.s.retros {
		if x.Slug == slug {
			cp := *x
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memRetros) GetByID(_ context.Context, id int64) (*models.Retro, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	x, ok := r.s.retros[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *x
	return &cp, nil
}

func (r memRetros) GetByIDForUpdate(ctx context.Context, id int64) (*models.Retro, error) {
	if err := r.s.failed("retros.GetByIDForUpdate"); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r memRetros) ListByUser(_ context.Context, userID int64) ([]*models.Retro, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Retro
	for _, x := range r.s.retros {
		if x.UserID != nil && *x.UserID == userID {
			cp := *x
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memRetros) Update(_ context.Context, retro *models.Retro) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.retros[retro.ID]; !ok {
		return common.ErrorNotFound
	}
	if r.slugTaken(retro.Slug, retro.ID) {
		return retros.ErrSlugTaken
	}
	cp := *retro
	r.s.retros[retro.ID] = &cp
	return nil
}

func (r memRetros) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.retros[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.retros, id)
	for k, it := range r.s.items {
		if it.RetroID == id {
			delete(r.s.items, k)
		}
	}
	for k, a := range r.s.actions {
		if a.RetroID == id {
			delete(r.s.actions, k)
		}
	}
	for k, a := range r.s.archives {
		if a.RetroID == id {
			delete(r.s.archives, k)
		}
	}
	return nil
}

func (r memRetros) SetHighlight(_ context.Context, retroID int64, itemID *int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	x, ok := r.s.retros[retroID]
	if !ok {
		return common.ErrorNotFound
	}
	x.HighlightedItemID = itemID
	return nil
}

func (r memRetros) HighlightLive(_ context.Context, retroID, itemID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failed("retros.HighlightLive"); err != nil {
		return err
	}
	x, ok := r.s.retros[retroID]
	it, live := memItems{s: r.s}.live(retroID, itemID)
	if !ok || !live {
		return common.ErrorNotFound
	}
	x.HighlightedItemID = &it.ID
	return nil
}

func (r memRetros) ClearHighlightIf(_ context.Context, retroID, itemID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failed("retros.ClearHighlightIf"); err != nil {
		return false, err
	}
	x, ok := r.s.retros[retroID]
	if !ok || x.HighlightedItemID == nil || *x.HighlightedItemID != itemID {
		return false, nil
	}
	x.HighlightedItemID = nil
	return true, nil
}

func (r memRetros) SetSendArchiveEmail(_ context.Context, retroID int64, send bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	x, ok := r.s.retros[retroID]
	if !ok {
		return common.ErrorNotFound
	}
	x.SendArchiveEmail = send
	return nil
}

// --- items ---

type memItems struct{ s *memStore }

func (r memItems) live(retroID, id int64) (*models.Item, bool) {
	it, ok := r.s.items[id]
	if !ok || it.RetroID != retroID || it.Archived {
		return nil, false
	}
	return it, true
}

func (r memItems) Create(_ context.Context, item *models.Item) (*models.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *item
	cp.ID = r.s.id()
	cp.CreatedAt = r.s.now
	r.s.items[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r memItems) Get(_ context.Context, retroID, id int64) (*models.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.items[id]
	if !ok || it.RetroID != retroID {
		return nil, common.ErrorNotFound
	}
	cp := *it
	return &cp, nil
}

func (r memItems) list(keep func(*models.Item) bool) []*models.Item {
	out := []*models.Item{}
	for _, it := range r.s.items {
		if keep(it) {
			cp := *it
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r memItems) ListLive(_ context.Context, retroID int64, order items.Order) ([]*models.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := r.list(func(it *models.Item) bool { return it.RetroID == retroID && !it.Archived })
	if order == items.OrderVotes {
		sort.SliceStable(out, func(i, j int) bool { return out[i].VoteCount > out[j].VoteCount })
	}
	return out, nil
}

func (r memItems) ListByArchive(_ context.Context, archiveID int64) ([]*models.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.list(func(it *models.Item) bool { return it.ArchiveID != nil && *it.ArchiveID == archiveID }), nil
}

func (r memItems) Update(_ context.Context, item *models.Item) (*models.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.live(item.RetroID, item.ID)
	if !ok {
		return nil, common.ErrorNotFound
	}
	it.Description, it.Category = item.Description, item.Category
	cp := *it
	return &cp, nil
}

func (r memItems) IncrementVote(_ context.Context, retroID, id int64) (*models.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.live(retroID, id)
	if !ok {
		return nil, common.ErrorNotFound
	}
	it.VoteCount++
	cp := *it
	return &cp, nil
}

func (r memItems) MarkDone(_ context.Context, retroID, id int64) (*models.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.live(retroID, id)
	if !ok {
		return nil, common.ErrorNotFound
	}
	it.Done = true
	cp := *it
	return &cp, nil
}

func (r memItems) Delete(_ context.Context, retroID, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failed("items.Delete"); err != nil {
		return err
	}
	if _, ok := r.live(retroID, id); !ok {
		return common.ErrorNotFound
	}
	delete(r.s.items, id)
	return nil
}

func (r memItems) ArchiveLive(_ context.Context, retroID, archiveID int64, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failed("items.ArchiveLive"); err != nil {
		return 0, err
	}
	var n int64
	for _, it := range r.s.items {
		if it.RetroID == retroID && !it.Archived {
			aid, ts := archiveID, at
			it.Archived, it.ArchiveID, it.ArchivedAt = true, &aid, &ts
			n++
		}
	}
	return n, nil
}

// --- action items ---

type memActions struct{ s *memStore }

func (r memActions) live(retroID, id int64) (*models.ActionItem, bool) {
	a, ok := r.s.actions[id]
	if !ok || a.RetroID != retroID || a.Archived {
		return nil, false
	}
	return a, true
}

func (r memActions) list(keep func(*models.ActionItem) bool) []*models.ActionItem {
	out := []*models.ActionItem{}
	for _, a := range r.s.actions {
		if keep(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r memActions) Create(_ context.Context, item *models.ActionItem) (*models.ActionItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *item
	cp.ID = r.s.id()
	cp.CreatedAt = r.s.now
	r.s.actions[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r memActions) Get(_ context.Context, retroID, id int64) (*models.ActionItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.actions[id]
	if !ok || a.RetroID != retroID {
		return nil, common.ErrorNotFound
	}
	cp := *a
	return &cp, nil
}

func (r memActions) ListLive(_ context.Context, retroID int64) ([]*models.ActionItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.list(func(a *models.ActionItem) bool { return a.RetroID == retroID && !a.Archived }), nil
}

func (r memActions) ListByArchive(_ context.Context, archiveID int64) ([]*models.ActionItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.list(func(a *models.ActionItem) bool { return a.ArchiveID != nil && *a.ArchiveID == archiveID }), nil
}

func (r memActions) Update(_ context.Context, item *models.ActionItem) (*models.ActionItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.live(item.RetroID, item.ID)
	if !ok {
		return nil, common.ErrorNotFound
	}
	a.Description, a.Done = item.Description, item.Done
	cp := *a
	return &cp, nil
}

func (r memActions) ToggleDone(_ context.Context, retroID, id int64) (*models.ActionItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.live(retroID, id)
	if !ok {
		return nil, common.ErrorNotFound
	}
	a.Done = !a.Done
	cp := *a
	return &cp, nil
}

func (r memActions) Delete(_ context.Context, retroID, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.live(retroID, id); !ok {
		return common.ErrorNotFound
	}
	delete(r.s.actions, id)
	return nil
}

func (r memActions) ArchiveDone(_ context.Context, retroID, archiveID int64, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, a := range r.s.actions {
		if a.RetroID == retroID && !a.Archived && a.Done {
			aid, ts := archiveID, at
			a.Archived, a.ArchiveID, a.ArchivedAt = true, &aid, &ts
			n++
		}
	}
	return n, nil
}

// --- archives ---

type memArchives struct{ s *memStore }

func (r memArchives) Create(_ context.Context, retroID int64, at time.Time) (*models.Archive, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a := &models.Archive{ID: r.s.id(), RetroID: retroID, CreatedAt: at}
	r.s.archives[a.ID] = a
	cp := *a
	return &cp, nil
}

func (r memArchives) Get(_ context.Context, retroID, id int64) (*models.Archive, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.archives[id]
	if !ok || a.RetroID != retroID {
		return nil, common.ErrorNotFound
	}
	cp := *a
	return &cp, nil
}

func (r memArchives) ListByRetro(_ context.Context, retroID int64) ([]*models.Archive, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.Archive{}
	for _, a := range r.s.archives {
		if a.RetroID == retroID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// --- users ---

type memUsers struct{ s *memStore }

func (r memUsers) Upsert(_ context.Context, user *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failed("users.Upsert"); err != nil {
		return nil, err
	}
	for _, u := range r.s.users {
		if u.Email == user.Email {
			u.Name, u.Domain = user.Name, user.Domain
			cp := *u
			return &cp, nil
		}
	}
	cp := *user
	cp.ID = r.s.id()
	cp.CreatedAt = r.s.now
	r.s.users[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r memUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

// --- session grants ---

type memSessions struct{ s *memStore }

func (r memSessions) Grant(_ context.Context, sessionID, slug string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.grants[sessionID] == nil {
		r.s.grants[sessionID] = map[string]time.Time{}
	}
	r.s.grants[sessionID][slug] = r.s.now
	return nil
}

func (r memSessions) List(_ context.Context, sessionID string, since time.Time) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []string
	for slug, at := range r.s.grants[sessionID] {
		if at.After(since) {
			out = append(out, slug)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r memSessions) Revoke(_ context.Context, sessionID, slug string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.grants[sessionID], slug)
	return nil
}

func (r memSessions) RevokeOthers(_ context.Context, slug, keep string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for sid, g := range r.s.grants {
		if _, ok := g[slug]; ok && sid != keep {
			delete(g, slug)
			n++
		}
	}
	return n, nil
}

func (r memSessions) Rename(_ context.Context, oldSlug, newSlug string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, g := range r.s.grants {
		delete(g, newSlug)
		if at, ok := g[oldSlug]; ok {
			delete(g, oldSlug)
			g[newSlug] = at
		}
	}
	return nil
}

func (r memSessions) RevokeAll(_ context.Context, slug string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, g := range r.s.grants {
		delete(g, slug)
	}
	return nil
}

func (r memSessions) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, g := range r.s.grants {
		for slug, at := range g {
			if at.Before(before) {
				delete(g, slug)
				n++
			}
		}
	}
	return n, nil
}

// recordingPublisher keeps every published payload.
type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events [][]byte
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, payload)
}
