package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arturkryukov/almstore/internal/almclient"
	"github.com/arturkryukov/almstore/internal/domain/model"
	"github.com/arturkryukov/almstore/internal/repository"
)

// --- Фикстурный шлюз ALM ---

// treeALM — ALMGateway поверх статического дерева сущностей.
// Дети индексируются ключом "вид|родитель"; все вызовы записываются,
// чтобы тесты могли проверить, какие выборки (не) выполнялись.
type treeALM struct {
	mu          sync.Mutex
	roots       map[string]almclient.RawEntity   // "вид|id"
	children    map[string][]almclient.RawEntity // "вид|родитель"
	downloads   map[string]almclient.Attachment  // id вложения
	downloadErr map[string]error                 // id вложения → ошибка
	fetchErr    map[string]error                 // "вид|родитель" → ошибка
	calls       []string
}

func newTreeALM() *treeALM {
	return &treeALM{
		roots:       make(map[string]almclient.RawEntity),
		children:    make(map[string][]almclient.RawEntity),
		downloads:   make(map[string]almclient.Attachment),
		downloadErr: make(map[string]error),
		fetchErr:    make(map[string]error),
	}
}

func treeKey(kind, parentID string) string { return kind + "|" + parentID }

// addChild регистрирует сущность как ребёнка родителя и как корень.
func (g *treeALM) addChild(kind, parentID string, raw almclient.RawEntity) {
	g.children[treeKey(kind, parentID)] = append(g.children[treeKey(kind, parentID)], raw)
	g.roots[treeKey(kind, raw.FieldMap()["id"])] = raw
}

func (g *treeALM) record(call string) {
	g.mu.Lock()
	g.calls = append(g.calls, call)
	g.mu.Unlock()
}

// fetchCount возвращает число выборок детей вида kind у родителя parentID.
func (g *treeALM) fetchCount(kind, parentID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == "fetch:"+treeKey(kind, parentID) {
			n++
		}
	}
	return n
}

func (g *treeALM) FetchAll(_ context.Context, _ *model.Session, _ model.Scope, kind, parentID, _ string) ([]almclient.RawEntity, int, error) {
	g.record("fetch:" + treeKey(kind, parentID))
	if err := g.fetchErr[treeKey(kind, parentID)]; err != nil {
		return nil, 0, err
	}
	return g.children[treeKey(kind, parentID)], 1, nil
}

func (g *treeALM) FetchByID(_ context.Context, _ *model.Session, _ model.Scope, kind, id string) (*almclient.RawEntity, error) {
	g.record("byid:" + treeKey(kind, id))
	raw, ok := g.roots[treeKey(kind, id)]
	if !ok {
		return nil, nil
	}
	return &raw, nil
}

func (g *treeALM) ListUnpaged(_ context.Context, _ *model.Session, kind, domain string) ([]almclient.RawEntity, error) {
	g.record("list:" + treeKey(kind, domain))
	return g.children[treeKey(kind, domain)], nil
}

func (g *treeALM) Download(_ context.Context, _ *model.Session, _ model.Scope, attachmentID string) (almclient.Attachment, error) {
	g.record("download:" + attachmentID)
	if err := g.downloadErr[attachmentID]; err != nil {
		return almclient.Attachment{}, err
	}
	return g.downloads[attachmentID], nil
}

// errDownloadBroken — ошибка скачивания вложения в фикстурах.
var errDownloadBroken = errors.New("вложение недоступно")

// makeAttachment собирает скачанное вложение для фикстур.
func makeAttachment(name, content string) almclient.Attachment {
	return almclient.Attachment{Filename: name, ContentType: "text/plain", Data: []byte(content)}
}

// rawEnt собирает сырую сущность ALM: id, name и дополнительные
// пары поле/значение.
func rawEnt(kind, id, name string, kv ...string) almclient.RawEntity {
	e := almclient.RawEntity{
		Type: kind,
		Fields: []almclient.RawField{
			{Name: "id", Values: []almclient.RawValue{{Value: id}}},
			{Name: "name", Values: []almclient.RawValue{{Value: name}}},
		},
	}
	for i := 0; i+1 < len(kv); i += 2 {
		e.Fields = append(e.Fields, almclient.RawField{
			Name:   kv[i],
			Values: []almclient.RawValue{{Value: kv[i+1]}},
		})
	}
	return e
}

// --- In-memory репозитории ---

// memEntityRepo — EntityRepository в памяти.
type memEntityRepo struct {
	mu      sync.Mutex
	records map[string]*model.EntityRecord // "owner|коллекция|id"
	upserts int
	failFor string // коллекция, на которой Upsert падает
}

func newMemEntityRepo() *memEntityRepo {
	return &memEntityRepo{records: make(map[string]*model.EntityRecord)}
}

func entityKey(owner, collection, id string) string {
	return owner + "|" + collection + "|" + id
}

func (r *memEntityRepo) Upsert(_ context.Context, collection string, e *model.EntityRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor != "" && r.failFor == collection {
		return false, fmt.Errorf("ошибка хранилища для коллекции %s", collection)
	}
	key := entityKey(e.OwnerUser, collection, e.EntityID)
	_, existed := r.records[key]
	r.records[key] = e
	r.upserts++
	return !existed, nil
}

func (r *memEntityRepo) GetByID(_ context.Context, owner, collection, entityID string) (*model.EntityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.records[entityKey(owner, collection, entityID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return e, nil
}

func (r *memEntityRepo) Find(_ context.Context, filters repository.EntityFilters, _, _ int) ([]*model.EntityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.EntityRecord
	for _, e := range r.records {
		if e.OwnerUser != filters.OwnerUser || e.Collection != filters.Collection {
			continue
		}
		if filters.ParentID != nil && e.ParentID != *filters.ParentID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *memEntityRepo) Count(ctx context.Context, filters repository.EntityFilters) (int, error) {
	found, err := r.Find(ctx, filters, 0, 0)
	return len(found), err
}

// countIn возвращает число записей в коллекции.
func (r *memEntityRepo) countIn(collection string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.records {
		if e.Collection == collection {
			n++
		}
	}
	return n
}

// memJobRepo — JobRepository в памяти. Мьютекс обязателен:
// извлечение обновляет задачу из фоновой горутины.
type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.ExtractionJob
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[string]*model.ExtractionJob)}
}

func (r *memJobRepo) Create(_ context.Context, j *model.ExtractionJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[j.JobID]; ok {
		return repository.ErrConflict
	}
	cp := *j
	r.jobs[j.JobID] = &cp
	return nil
}

func (r *memJobRepo) Get(_ context.Context, owner, jobID string) (*model.ExtractionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok || j.OwnerUser != owner {
		return nil, repository.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *memJobRepo) List(_ context.Context, owner string, _, _ int) ([]*model.ExtractionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.ExtractionJob
	for _, j := range r.jobs {
		if j.OwnerUser == owner {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memJobRepo) SetStatus(_ context.Context, jobID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return repository.ErrNotFound
	}
	j.Status = status
	return nil
}

func (r *memJobRepo) AddCounters(_ context.Context, jobID string, delta model.JobCounters) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return repository.ErrNotFound
	}
	j.Counters.Add(delta)
	return nil
}

func (r *memJobRepo) AppendNote(_ context.Context, jobID, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return repository.ErrNotFound
	}
	j.Notes = append(j.Notes, note)
	return nil
}

func (r *memJobRepo) Complete(_ context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	j.Status = model.JobStatusCompleted
	j.CompletedAt = &now
	return nil
}

func (r *memJobRepo) Fail(_ context.Context, jobID, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	j.Status = model.JobStatusFailed
	j.Error = &errMsg
	j.CompletedAt = &now
	return nil
}

// memAttachmentCache — AttachmentCacheRepository в памяти.
type memAttachmentCache struct {
	mu      sync.Mutex
	records map[string]*model.AttachmentRecord
}

func newMemAttachmentCache() *memAttachmentCache {
	return &memAttachmentCache{records: make(map[string]*model.AttachmentRecord)}
}

func attKey(owner string, scope model.Scope, id string) string {
	return owner + "|" + scope.Domain + "|" + scope.Project + "|" + id
}

func (r *memAttachmentCache) Upsert(_ context.Context, a *model.AttachmentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[attKey(a.OwnerUser, model.Scope{Domain: a.Domain, Project: a.Project}, a.AttachmentID)] = a
	return nil
}

func (r *memAttachmentCache) Get(_ context.Context, owner string, scope model.Scope, attachmentID string) (*model.AttachmentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.records[attKey(owner, scope, attachmentID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return a, nil
}

func (r *memAttachmentCache) GetMeta(ctx context.Context, owner string, scope model.Scope, attachmentID string) (*model.AttachmentRecord, error) {
	a, err := r.Get(ctx, owner, scope, attachmentID)
	if err != nil {
		return nil, err
	}
	cp := *a
	cp.Data = nil
	return &cp, nil
}

func (r *memAttachmentCache) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records), nil
}

// memCredRepo — CredentialRepository в памяти.
type memCredRepo struct {
	mu    sync.Mutex
	creds map[string]*model.Credential
}

func newMemCredRepo() *memCredRepo {
	return &memCredRepo{creds: make(map[string]*model.Credential)}
}

func (r *memCredRepo) Upsert(_ context.Context, c *model.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds[c.OwnerUser] = c
	return nil
}

func (r *memCredRepo) Get(_ context.Context, owner string) (*model.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[owner]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (r *memCredRepo) Delete(_ context.Context, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.creds, owner)
	return nil
}

// mockAuthenticator — мок Authenticator.
type mockAuthenticator struct {
	authenticateFn func(ctx context.Context, username, password string) (model.Session, error)
	logoutFn       func(ctx context.Context, sess model.Session) error
}

func (m *mockAuthenticator) Authenticate(ctx context.Context, username, password string) (model.Session, error) {
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, username, password)
	}
	return model.Session{User: username, LWSSOCookie: "lwsso"}, nil
}

func (m *mockAuthenticator) Logout(ctx context.Context, sess model.Session) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sess)
	}
	return nil
}
