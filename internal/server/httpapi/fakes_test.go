package httpapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/postfacto/internal/common"
	"github.com/dmitrijs2005/postfacto/internal/logging"
	"github.com/dmitrijs2005/postfacto/internal/server/models"
	"github.com/dmitrijs2005/postfacto/internal/server/repositories/items"
	"github.com/dmitrijs2005/postfacto/internal/server/services"
	"github.com/dmitrijs2005/postfacto/internal/server/session"
)

var testLogger = logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

// backend is a tiny in-memory implementation of every service the API uses.
type backend struct {
	mu        sync.Mutex
	nextID    int64
	retros    map[string]*models.Retro
	passwords map[string]string
	grants    map[string]map[string]bool
	items     map[int64]*models.Item
	actions   map[int64]*models.ActionItem
	archived  []bool
	users     map[string]*models.User
}

func newBackend() *backend {
	return &backend{
		retros:    map[string]*models.Retro{},
		passwords: map[string]string{},
		grants:    map[string]map[string]bool{},
		items:     map[int64]*models.Item{},
		actions:   map[int64]*models.ActionItem{},
		users:     map[string]*models.User{},
	}
}

func (b *backend) id() int64 {
	b.nextID++
	return b.nextID
}

func (b *backend) addRetro(slug string, private bool, password string) *models.Retro {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := &models.Retro{ID: b.id(), Slug: slug, Name: strings.ToUpper(slug), IsPrivate: private, SendArchiveEmail: true}
	b.retros[slug] = r
	b.passwords[slug] = password
	return r
}

func (b *backend) addItem(retroID int64, archived bool) *models.Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	it := &models.Item{ID: b.id(), RetroID: retroID, Category: models.CategoryHappy, Description: "item", Archived: archived}
	b.items[it.ID] = it
	return it
}

func (b *backend) setPrivate(slug, password string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.retros[slug].IsPrivate = true
	b.passwords[slug] = password
}

// revokeAllExcept drops the grants for slug of every session but keep.
func (b *backend) revokeAllExcept(slug, keep string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, grants := range b.grants {
		if id != keep {
			delete(grants, slug)
		}
	}
}

func (b *backend) revokeAll(slug string) {
	b.revokeAllExcept(slug, "")
}

func (b *backend) services() Services {
	return Services{
		Retros:      fakeRetros{b},
		Sessions:    fakeSessions{b},
		Items:       fakeItems{b},
		ActionItems: fakeActions{b},
		Archives:    fakeArchives{b},
		Users:       fakeUsers{b},
	}
}

// --- retros ---

type fakeRetros struct{ b *backend }

func (f fakeRetros) Create(ctx context.Context, in services.CreateRetroInput, ownerID *int64) (*models.Retro, error) {
	if in.Name == "" {
		return nil, services.ErrNameRequired
	}
	r := f.b.addRetro(models.Slugify(in.Name), in.IsPrivate, in.Password)
	r.UserID = ownerID
	if sess := session.FromContext(ctx); sess != nil {
		f.b.grant(sess, r.Slug)
	}
	return r, nil
}

func (f fakeRetros) Get(_ context.Context, slug string) (*models.Retro, error) {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	r, ok := f.b.retros[slug]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *r
	return &cp, nil
}

func (f fakeRetros) Board(_ context.Context, retro *models.Retro, order items.Order) (*services.Board, error) {
	if retro.Slug == "explode" {
		panic("board exploded")
	}
	if retro.Slug == "broken" {
		return nil, fmt.Errorf("query board: %w", io.ErrUnexpectedEOF)
	}
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	board := &services.Board{Retro: retro, Items: map[models.Category][]*models.Item{}, ActionItems: []*models.ActionItem{}}
	for _, it := range f.b.items {
		if it.RetroID == retro.ID && !it.Archived {
			board.Items[it.Category] = append(board.Items[it.Category], it)
		}
	}
	if order == items.OrderVotes {
		for _, list := range board.Items {
			sort.Slice(list, func(i, j int) bool { return list[i].VoteCount > list[j].VoteCount })
		}
	}
	return board, nil
}

func (f fakeRetros) ListByUser(_ context.Context, userID int64) ([]*models.Retro, error) {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	var out []*models.Retro
	for _, r := range f.b.retros {
		if r.UserID != nil && *r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f fakeRetros) Update(_ context.Context, retro *models.Retro, upd services.RetroUpdate) (*models.Retro, error) {
	if upd.Name != nil {
		retro.Name = *upd.Name
	}
	return retro, nil
}

func (f fakeRetros) Delete(_ context.Context, retro *models.Retro) error {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	delete(f.b.retros, retro.Slug)
	return nil
}

// --- sessions ---

type fakeSessions struct{ b *backend }

func (b *backend) grant(sess *session.Session, slug string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.grants[sess.ID] == nil {
		b.grants[sess.ID] = map[string]bool{}
	}
	b.grants[sess.ID][slug] = true
	sess.Grant(slug)
}

func (f fakeSessions) Load(_ context.Context, id string) (*session.Session, error) {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	sess := session.New(id)
	for slug := range f.b.grants[id] {
		sess.Grant(slug)
	}
	return sess, nil
}

func (f fakeSessions) Authorize(ctx context.Context, retro *models.Retro) error {
	if !retro.IsPrivate || session.FromContext(ctx).Granted(retro.Slug) {
		return nil
	}
	return common.ErrorAuthRequired
}

func (f fakeSessions) Authenticate(ctx context.Context, slug, password string) (*models.Retro, error) {
	retro, err := fakeRetros(f).Get(ctx, slug)
	if err != nil {
		return nil, err
	}
	if retro.IsPrivate && f.b.passwords[slug] != password {
		return nil, services.ErrIncorrectPassword
	}
	f.b.grant(session.FromContext(ctx), slug)
	return retro, nil
}

func (f fakeSessions) AuthenticateMagicLink(ctx context.Context, token string) (*models.Retro, error) {
	slug, ok := strings.CutPrefix(token, "join-")
	if !ok {
		return nil, services.ErrInvalidMagicLink
	}
	return f.Authenticate(ctx, slug, f.b.passwords[slug])
}

func (f fakeSessions) IssueMagicLink(retro *models.Retro) (*services.MagicLink, error) {
	token := "join-" + retro.Slug
	return &services.MagicLink{Token: token, URL: "http://localhost/api/join/" + token, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f fakeSessions) Logout(ctx context.Context, slug string) error {
	sess := session.FromContext(ctx)
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	delete(f.b.grants[sess.ID], slug)
	sess.Revoke(slug)
	return nil
}

// --- items ---

type fakeItems struct{ b *backend }

func (f fakeItems) live(retro *models.Retro, id int64) (*models.Item, error) {
	it, ok := f.b.items[id]
	if !ok || it.RetroID != retro.ID {
		return nil, common.ErrorNotFound
	}
	if it.Archived {
		return nil, services.ErrArchived
	}
	return it, nil
}

func (f fakeItems) Create(_ context.Context, retro *models.Retro, category models.Category, description string) (*models.Item, error) {
	if strings.TrimSpace(description) == "" {
		return nil, services.ErrDescriptionRequired
	}
	if !category.Valid() {
		return nil, services.ErrCategoryInvalid
	}
	it := f.b.addItem(retro.ID, false)
	it.Category, it.Description = category, description
	return it, nil
}

func (f fakeItems) Update(_ context.Context, retro *models.Retro, id int64, upd services.ItemUpdate) (*models.Item, error) {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	it, err := f.live(retro, id)
	if err != nil {
		return nil, err
	}
	if upd.Description != nil {
		it.Description = *upd.Description
	}
	return it, nil
}

func (f fakeItems) Delete(_ context.Context, retro *models.Retro, id int64) error {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	if _, err := f.live(retro, id); err != nil {
		return err
	}
	delete(f.b.items, id)
	return nil
}

func (f fakeItems) Vote(_ context.Context, retro *models.Retro, id int64) (*models.Item, error) {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	it, err := f.live(retro, id)
	if err != nil {
		return nil, err
	}
	it.VoteCount++
	cp := *it
	return &cp, nil
}

func (f fakeItems) Highlight(_ context.Context, retro *models.Retro, id int64) error {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	if _, err := f.live(retro, id); err != nil {
		return err
	}
	retro.HighlightedItemID = &id
	return nil
}

func (f fakeItems) Unhighlight(_ context.Context, retro *models.Retro) error {
	retro.HighlightedItemID = nil
	return nil
}

func (f fakeItems) MarkDone(_ context.Context, retro *models.Retro, id int64) (*models.Item, error) {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	it, err := f.live(retro, id)
	if err != nil {
		return nil, err
	}
	it.Done = true
	return it, nil
}

// --- action items ---

type fakeActions struct{ b *backend }

func (f fakeActions) get(retro *models.Retro, id int64) (*models.ActionItem, error) {
	a, ok := f.b.actions[id]
	if !ok || a.RetroID != retro.ID {
		return nil, common.ErrorNotFound
	}
	return a, nil
}

func (f fakeActions) Create(_ context.Context, retro *models.Retro, description string) (*models.ActionItem, error) {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	a := &models.ActionItem{ID: f.b.id(), RetroID: retro.ID, Description: description}
	f.b.actions[a.ID] = a
	return a, nil
}

func (f fakeActions) Update(_ context.Context, retro *models.Retro, id int64, upd services.ActionItemUpdate) (*models.ActionItem, error) {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	a, err := f.get(retro, id)
	if err != nil {
		return nil, err
	}
	if upd.Done != nil {
		a.Done = *upd.Done
	}
	if upd.Description != nil {
		a.Description = *upd.Description
	}
	return a, nil
}

func (f fakeActions) ToggleDone(_ context.Context, retro *models.Retro, id int64) (*models.ActionItem, error) {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	a, err := f.get(retro, id)
	if err != nil {
		return nil, err
	}
	a.Done = !a.Done
	return a, nil
}

func (f fakeActions) Delete(_ context.Context, retro *models.Retro, id int64) error {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	if _, err := f.get(retro, id); err != nil {
		return err
	}
	delete(f.b.actions, id)
	return nil
}

// --- archives ---

type fakeArchives struct{ b *backend }

func (f fakeArchives) Archive(_ context.Context, retro *models.Retro, sendEmail bool) (*services.ArchiveResult, error) {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	f.b.archived = append(f.b.archived, sendEmail)
	var n int64
	for _, it := range f.b.items {
		if it.RetroID == retro.ID && !it.Archived {
			it.Archived = true
			n++
		}
	}
	return &services.ArchiveResult{Archive: &models.Archive{ID: 1, RetroID: retro.ID}, Items: n, EmailSent: sendEmail}, nil
}

func (f fakeArchives) List(_ context.Context, retro *models.Retro) ([]*models.Archive, error) {
	return nil, nil
}

func (f fakeArchives) Get(_ context.Context, retro *models.Retro, id int64) (*services.ArchiveDetail, error) {
	if id != 1 {
		return nil, common.ErrorNotFound
	}
	return &services.ArchiveDetail{Archive: &models.Archive{ID: 1, RetroID: retro.ID}, Items: []*models.Item{}, ActionItems: []*models.ActionItem{}}, nil
}

func (f fakeArchives) ExportURL(_ context.Context, retro *models.Retro, id int64) (string, error) {
	return fmt.Sprintf("https://s3.local/retros/%d/archives/%d.json", retro.ID, id), nil
}

// --- users ---

type fakeUsers struct{ b *backend }

func (f fakeUsers) Login(_ context.Context, accessToken string) (*services.LoginResult, error) {
	name, ok := strings.CutPrefix(accessToken, "google-")
	if !ok {
		return nil, fmt.Errorf("userinfo: status 401: %w", common.ErrorUpstream)
	}
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	u, ok := f.b.users[name]
	if !ok {
		u = &models.User{ID: f.b.id(), Email: name + "@example.com", Name: name}
		f.b.users[name] = u
	}
	return &services.LoginResult{User: u, AuthToken: "token-" + name}, nil
}

func (f fakeUsers) Authenticate(_ context.Context, token string) (*models.User, error) {
	name, ok := strings.CutPrefix(token, "token-")
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	u, found := f.b.users[name]
	if !ok || !found {
		return nil, common.AuthFailed("invalid auth token")
	}
	return u, nil
}
