package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dashboard/api/internal/dashboard"
	"dashboard/api/internal/store"
	"dashboard/api/internal/util"
	"github.com/rs/zerolog"
)

// ConfigStore is implemented by store.PostgresStore, store.ObjectStore and
// session.RedisStore.
type ConfigStore interface {
	GetConfig(context.Context, string) (store.ConfigRecord, error)
	PutConfig(context.Context, store.ConfigRecord) (store.ConfigRecord, error)
	DeleteConfig(context.Context, string) error
	Ping(context.Context) error
}

type Service struct {
	store  ConfigStore
	logger zerolog.Logger
	now    func() time.Time
}

func New(configStore ConfigStore, logger zerolog.Logger) *Service {
	return &Service{
		store:  configStore,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// GetConfig returns the stored document exactly as it was written.
func (s *Service) GetConfig(ctx context.Context, sessionID string) (store.ConfigRecord, error) {
	if !util.ValidKey(sessionID) {
		return store.ConfigRecord{}, invalidSessionID(sessionID)
	}
	record, err := s.store.GetConfig(ctx, sessionID)
	if err != nil {
		return store.ConfigRecord{}, err
	}
	return record, nil
}

// DeleteConfig forgets the session's document. Repeating it is harmless.
func (s *Service) DeleteConfig(ctx context.Context, sessionID string) error {
	if !util.ValidKey(sessionID) {
		return invalidSessionID(sessionID)
	}
	if err := s.store.DeleteConfig(ctx, sessionID); err != nil {
		return err
	}
	s.logger.Info().Str("session_id", sessionID).Msg("config deleted")
	return nil
}

// PutConfig normalizes the submitted document before storing it, so whatever
// shape a client sends, readers only ever see the current one.
func (s *Service) PutConfig(ctx context.Context, sessionID string, raw json.RawMessage) (store.ConfigRecord, error) {
	if !util.ValidKey(sessionID) {
		return store.ConfigRecord{}, invalidSessionID(sessionID)
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return store.ConfigRecord{}, validationError("document must be a JSON object")
	}

	doc, outcome := dashboard.Normalize(trimmed)
	if outcome.Changed() {
		s.logger.Info().
			Str("session_id", sessionID).
			Bool("migrated", outcome.Migrated).
			Bool("repaired", outcome.Repaired).
			Msg("normalized submitted dashboard")
	}
	return s.put(ctx, sessionID, doc)
}

// SetActiveTab changes only the active workspace of the stored document. The
// stored revision is kept as it is: the selection is applied to content this
// write never saw, so it must not outrank a full save still in flight. A
// revision lower than the stored one means the switch predates the stored
// content and is rejected. Zero skips that check.
func (s *Service) SetActiveTab(ctx context.Context, sessionID, tabID string, revision int64) (store.ConfigRecord, error) {
	if !util.ValidKey(sessionID) {
		return store.ConfigRecord{}, invalidSessionID(sessionID)
	}
	tabID = strings.TrimSpace(tabID)
	if tabID == "" {
		return store.ConfigRecord{}, validationError("activeTabId is required")
	}
	if revision < 0 {
		return store.ConfigRecord{}, validationError("revision must not be negative")
	}

	current, err := s.store.GetConfig(ctx, sessionID)
	if err != nil {
		return store.ConfigRecord{}, err
	}
	if revision != 0 && revision < current.Revision {
		return store.ConfigRecord{}, store.ErrStaleRevision
	}
	doc, _ := dashboard.Normalize(current.Document)
	if doc.TabIndex(tabID) < 0 {
		return store.ConfigRecord{}, domainError(http.StatusNotFound, "TAB_NOT_FOUND", "Tab not found", map[string]any{"activeTabId": tabID})
	}

	doc.ActiveTabID = tabID
	// A full save landing between the read above and this write carries a
	// higher revision, so the store rejects this write instead of reverting it.
	doc.Revision = current.Revision
	return s.put(ctx, sessionID, doc)
}

func (s *Service) put(ctx context.Context, sessionID string, doc dashboard.Document) (store.ConfigRecord, error) {
	encoded, err := json.Marshal(doc)
	if err != nil {
		return store.ConfigRecord{}, fmt.Errorf("encode document: %w", err)
	}
	record, err := s.store.PutConfig(ctx, store.ConfigRecord{
		SessionID: sessionID,
		Document:  encoded,
		Revision:  doc.Revision,
		UpdatedAt: s.now().UTC(),
	})
	if errors.Is(err, store.ErrStaleRevision) {
		s.logger.Debug().Str("session_id", sessionID).Int64("revision", doc.Revision).Msg("dropped stale write")
		return store.ConfigRecord{}, err
	}
	if err != nil {
		return store.ConfigRecord{}, err
	}
	return record, nil
}
