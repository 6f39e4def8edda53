package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/fieldops-api/internal/access"
	"github.com/noah-isme/fieldops-api/internal/metadata"
	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/internal/query"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
)

type entityStore interface {
	Select(ctx context.Context, q query.Query) ([]models.Record, error)
	Get(ctx context.Context, q query.Query) (models.Record, error)
	Count(ctx context.Context, q query.Query) (int, error)
	Exec(ctx context.Context, q query.Query) (int64, error)
}

// Actor identifies the authenticated caller for entity operations.
type Actor struct {
	UserID   string
	Email    string
	Role     string
	Provider string
}

// ListResult carries a page of records with its pagination metadata.
type ListResult struct {
	Records    []models.Record   `json:"records"`
	Pagination models.Pagination `json:"pagination"`
	FromCache  bool              `json:"-"`
}

// EntityService executes CRUD for every registered entity by composing the
// metadata registry, the permission resolver and the query builder. No
// per-entity SQL lives here or anywhere downstream of here.
type EntityService struct {
	registry *metadata.Registry
	resolver *access.Resolver
	builder  *query.Builder
	repo     entityStore
	cache    *CacheService
	audit    auditor
	logger   *zap.Logger

	defaultLimit int
	maxLimit     int
}

// NewEntityService constructs an EntityService.
func NewEntityService(registry *metadata.Registry, resolver *access.Resolver, builder *query.Builder, repo entityStore, cache *CacheService, audit auditor, logger *zap.Logger, defaultLimit, maxLimit int) *EntityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	if maxLimit <= 0 {
		maxLimit = 100
	}
	return &EntityService{
		registry:     registry,
		resolver:     resolver,
		builder:      builder,
		repo:         repo,
		cache:        cache,
		audit:        audit,
		logger:       logger,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// List returns a page of entity records visible to the actor.
func (s *EntityService) List(ctx context.Context, actor Actor, entity string, params models.ListParams) (*ListResult, error) {
	meta, decision, err := s.authorize(actor, entity, access.OpList)
	if err != nil {
		return nil, err
	}

	params.Elevated = s.elevated(actor)
	if params.Page == 0 {
		params.Page = 1
	}
	if params.Limit == 0 {
		params.Limit = s.defaultLimit
	}

	for _, include := range params.Include {
		if _, ok := meta.Relationships[include]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("unknown relationship %q for %q", include, entity))
		}
	}

	cacheKey := listCacheKey(entity, params, decision.RowConstraint)
	if s.cache.Enabled() && len(params.Include) == 0 {
		var cached ListResult
		if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
			cached.FromCache = true
			return &cached, nil
		}
	}

	listQuery, countQuery, err := s.builder.BuildList(meta, params, decision.RowConstraint)
	if err != nil {
		return nil, err
	}

	records, err := s.repo.Select(ctx, listQuery)
	if err != nil {
		return nil, infra(err, "failed to list records")
	}
	total, err := s.repo.Count(ctx, countQuery)
	if err != nil {
		return nil, infra(err, "failed to count records")
	}

	if err := s.attachRelated(ctx, meta, records, params.Include); err != nil {
		return nil, err
	}

	for _, record := range records {
		stripExcluded(meta, record)
	}

	result := &ListResult{
		Records: records,
		Pagination: models.Pagination{
			Page:       params.Page,
			PageSize:   params.Limit,
			TotalCount: total,
		},
	}

	if s.cache.Enabled() && len(params.Include) == 0 {
		_ = s.cache.Set(ctx, cacheKey, result, 0)
	}
	return result, nil
}

// Get returns one record by primary key within the actor's RLS window. A row
// outside that window is indistinguishable from an absent one.
func (s *EntityService) Get(ctx context.Context, actor Actor, entity, id string) (models.Record, error) {
	meta, decision, err := s.authorize(actor, entity, access.OpRead)
	if err != nil {
		return nil, err
	}

	record, err := s.repo.Get(ctx, s.builder.BuildGet(meta, id, decision.RowConstraint))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "")
		}
		return nil, infra(err, "failed to fetch record")
	}

	stripExcluded(meta, record)
	return record, nil
}

// Create inserts a new record from caller-supplied fields. Own-record callers
// can only create rows they own.
func (s *EntityService) Create(ctx context.Context, actor Actor, entity string, payload models.Record) (models.Record, error) {
	meta, decision, err := s.authorize(actor, entity, access.OpCreate)
	if err != nil {
		return nil, err
	}

	if err := validateWritable(meta, payload, decision.RowConstraint, s.elevated(actor)); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record := models.Record{}
	for k, v := range payload {
		record[k] = v
	}
	if decision.RowConstraint != nil {
		record[decision.RowConstraint.Column] = decision.RowConstraint.Value
	}
	id := uuid.NewString()
	record[meta.PrimaryKey] = id
	if meta.HasField("created_at") {
		record["created_at"] = now
	}
	if meta.HasField("updated_at") {
		record["updated_at"] = now
	}

	insert, err := s.builder.BuildInsert(meta, record)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.Exec(ctx, insert); err != nil {
		return nil, mutationError(err, "failed to create record")
	}

	created, err := s.repo.Get(ctx, s.builder.BuildGet(meta, id, decision.RowConstraint))
	if err != nil {
		return nil, infra(err, "failed to reload created record")
	}
	stripExcluded(meta, created)

	s.invalidate(ctx, entity)
	s.recordMutation(ctx, actor, entity, models.AuditActionCreate, id, nil, created)
	return created, nil
}

// Update modifies writable fields of a record the actor can see.
func (s *EntityService) Update(ctx context.Context, actor Actor, entity, id string, payload models.Record) (models.Record, error) {
	meta, decision, err := s.authorize(actor, entity, access.OpUpdate)
	if err != nil {
		return nil, err
	}

	if err := validateWritable(meta, payload, decision.RowConstraint, s.elevated(actor)); err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no fields to update")
	}

	before, err := s.repo.Get(ctx, s.builder.BuildGet(meta, id, decision.RowConstraint))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "")
		}
		return nil, infra(err, "failed to fetch record")
	}

	record := models.Record{}
	for k, v := range payload {
		record[k] = v
	}
	if meta.HasField("updated_at") {
		record["updated_at"] = time.Now().UTC()
	}

	update, err := s.builder.BuildUpdate(meta, id, record, decision.RowConstraint)
	if err != nil {
		return nil, err
	}
	affected, err := s.repo.Exec(ctx, update)
	if err != nil {
		return nil, mutationError(err, "failed to update record")
	}
	if affected == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "")
	}

	after, err := s.repo.Get(ctx, s.builder.BuildGet(meta, id, decision.RowConstraint))
	if err != nil {
		return nil, infra(err, "failed to reload updated record")
	}
	stripExcluded(meta, before)
	stripExcluded(meta, after)

	s.invalidate(ctx, entity)
	s.recordMutation(ctx, actor, entity, models.AuditActionUpdate, id, before, after)
	return after, nil
}

// Delete removes a record the actor can see.
func (s *EntityService) Delete(ctx context.Context, actor Actor, entity, id string) error {
	meta, decision, err := s.authorize(actor, entity, access.OpDelete)
	if err != nil {
		return err
	}

	before, err := s.repo.Get(ctx, s.builder.BuildGet(meta, id, decision.RowConstraint))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "")
		}
		return infra(err, "failed to fetch record")
	}

	affected, err := s.repo.Exec(ctx, s.builder.BuildDelete(meta, id, decision.RowConstraint))
	if err != nil {
		return mutationError(err, "failed to delete record")
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "")
	}

	stripExcluded(meta, before)
	s.invalidate(ctx, entity)
	s.recordMutation(ctx, actor, entity, models.AuditActionDelete, id, before, nil)
	return nil
}

func (s *EntityService) authorize(actor Actor, entity string, op access.Operation) (*metadata.EntityMetadata, access.Decision, error) {
	meta, err := s.registry.Get(entity)
	if err != nil {
		return nil, access.Decision{}, err
	}

	decision := s.resolver.Resolve(actor.Role, entity, actor.UserID, op)
	if !decision.Allowed {
		// Denials carry no detail about why, or whether the resource would
		// exist in another role's view.
		return nil, access.Decision{}, appErrors.Clone(appErrors.ErrForbidden, "")
	}
	return meta, decision, nil
}

func (s *EntityService) elevated(actor Actor) bool {
	return s.resolver.MeetsMinimumRole(actor.Role, string(models.RoleManager))
}

func (s *EntityService) attachRelated(ctx context.Context, meta *metadata.EntityMetadata, records []models.Record, includes []string) error {
	if len(includes) == 0 || len(records) == 0 {
		return nil
	}

	parentIDs := make([]interface{}, len(records))
	for i, record := range records {
		parentIDs[i] = record[meta.PrimaryKey]
	}

	for _, name := range includes {
		rel := meta.Relationships[name]
		related, err := s.repo.Select(ctx, s.builder.BuildRelated(rel, parentIDs))
		if err != nil {
			return infra(err, "failed to load related records")
		}

		grouped := make(map[interface{}][]models.Record, len(records))
		for _, row := range related {
			key := row[rel.ForeignKey]
			grouped[key] = append(grouped[key], row)
		}
		for _, record := range records {
			children := grouped[record[meta.PrimaryKey]]
			if children == nil {
				children = []models.Record{}
			}
			record[name] = children
		}
	}
	return nil
}

func (s *EntityService) invalidate(ctx context.Context, entity string) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Invalidate(ctx, "entity:"+entity+":*"); err != nil {
		s.logger.Warn("failed to invalidate list cache", zap.String("entity", entity), zap.Error(err))
	}
}

func (s *EntityService) recordMutation(ctx context.Context, actor Actor, entity, action, id string, before, after models.Record) {
	if s.audit == nil {
		return
	}
	var oldValues, newValues []byte
	if before != nil {
		oldValues, _ = json.Marshal(before)
	}
	if after != nil {
		newValues, _ = json.Marshal(after)
	}
	s.audit.Record(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   entity,
		ResourceID: &id,
		OldValues:  oldValues,
		NewValues:  newValues,
	})
}

// validateWritable rejects payload fields outside the writable allow-list,
// restricted fields written without elevation, and owner reassignment by
// own-record callers. Nothing is silently dropped.
func validateWritable(meta *metadata.EntityMetadata, payload models.Record, rc *access.Constraint, elevated bool) error {
	for field := range payload {
		if !meta.IsWritable(field) {
			return appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("field %q is not writable on %q", field, meta.Name))
		}
		if meta.IsRestricted(field) && !elevated {
			return appErrors.Clone(appErrors.ErrForbidden,
				fmt.Sprintf("field %q requires elevated permission", field))
		}
		if rc != nil && field == rc.Column {
			return appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("field %q is managed by the server", field))
		}
	}
	return nil
}

func stripExcluded(meta *metadata.EntityMetadata, record models.Record) {
	for _, field := range meta.ExcludedFields {
		delete(record, field)
	}
}

func listCacheKey(entity string, params models.ListParams, rc *access.Constraint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "entity:%s:list:search=%s:sort=%s %s:page=%d:limit=%d:elevated=%t",
		entity, params.Search, params.SortBy, params.SortOrder, params.Page, params.Limit, params.Elevated)
	filters := make([]string, 0, len(params.Filters))
	for _, f := range params.Filters {
		filters = append(filters, fmt.Sprintf("%s %s %s", f.Field, f.Op, strings.Join(f.Values, ",")))
	}
	sort.Strings(filters)
	for _, f := range filters {
		b.WriteString(":f=" + f)
	}
	if rc != nil {
		fmt.Fprintf(&b, ":rc=%s=%s", rc.Column, rc.Value)
	}
	return b.String()
}

func infra(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func mutationError(err error, message string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return appErrors.Clone(appErrors.ErrConflict, "record already exists")
		case "23503":
			return appErrors.Clone(appErrors.ErrValidation, "referenced record does not exist")
		}
	}
	return infra(err, message)
}
