// Package mirror is the cached read path between the HTTP boundary and
// the messaging session. Every list read goes freshness-check first:
// serve the cached value while it is inside its window, refresh from the
// session otherwise. When the session is not ready, reads degrade to
// empty results so the client keeps rendering.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/involvex/warelay/internal/cache"
	"github.com/involvex/warelay/internal/config"
	"github.com/involvex/warelay/internal/model"
	"github.com/involvex/warelay/internal/ranking"
	"github.com/involvex/warelay/internal/wa"
)

// listKey is the cache key for whole-list namespaces (chats, contacts).
const listKey = "all"

// messageFetchLimit bounds how much history one refresh pulls.
const messageFetchLimit = 500

// Service owns the read path.
type Service struct {
	cache   *cache.Cache
	session wa.Session
	ttl     *config.Cache
	logger  *zap.Logger
}

// New creates the read path service.
func New(c *cache.Cache, session wa.Session, ttl *config.Cache, logger *zap.Logger) *Service {
	return &Service{cache: c, session: session, ttl: ttl, logger: logger}
}

// Chats returns the ranked chat list, served from cache inside the
// freshness window.
func (s *Service) Chats(ctx context.Context) ([]model.ChatSummary, error) {
	if s.cache.IsFresh(cache.Chats, listKey, s.ttl.ChatsTTL()) {
		if chats, ok := cache.Lookup[[]model.ChatSummary](s.cache, cache.Chats, listKey); ok {
			return chats, nil
		}
	}

	chats, err := s.session.GetChats(ctx)
	if errors.Is(err, wa.ErrNotReady) {
		return []model.ChatSummary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("refresh chats: %w", err)
	}

	ranked := ranking.Sort(chats)
	s.cache.Set(cache.Chats, listKey, ranked)
	s.logger.Debug("chats refreshed", zap.Int("count", len(ranked)))
	return ranked, nil
}

// Contacts returns the address book, cache first.
func (s *Service) Contacts(ctx context.Context) ([]model.Contact, error) {
	if s.cache.IsFresh(cache.Contacts, listKey, s.ttl.ContactsTTL()) {
		if contacts, ok := cache.Lookup[[]model.Contact](s.cache, cache.Contacts, listKey); ok {
			return contacts, nil
		}
	}

	contacts, err := s.session.GetContacts(ctx)
	if errors.Is(err, wa.ErrNotReady) {
		return []model.Contact{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("refresh contacts: %w", err)
	}

	s.cache.Set(cache.Contacts, listKey, contacts)
	s.logger.Debug("contacts refreshed", zap.Int("count", len(contacts)))
	return contacts, nil
}

// Messages returns one chat's history, cache first, keyed by chat id.
// A refresh carries the cached chat's in-flight and failed sends over into
// the refetched history: those records exist nowhere upstream.
func (s *Service) Messages(ctx context.Context, chatID string) ([]model.MessageRecord, error) {
	if s.cache.IsFresh(cache.Messages, chatID, s.ttl.MessagesTTL()) {
		if msgs, ok := cache.Lookup[[]model.MessageRecord](s.cache, cache.Messages, chatID); ok {
			return msgs, nil
		}
	}

	msgs, err := s.session.FetchMessages(ctx, chatID, messageFetchLimit)
	if errors.Is(err, wa.ErrNotReady) {
		return []model.MessageRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("refresh messages for %s: %w", chatID, err)
	}
	if msgs == nil {
		msgs = []model.MessageRecord{}
	}

	if cached, ok := cache.Lookup[[]model.MessageRecord](s.cache, cache.Messages, chatID); ok {
		msgs = mergeLocal(msgs, cached)
	}

	s.cache.Set(cache.Messages, chatID, msgs)
	return msgs, nil
}

// mergeLocal folds local-only records from the previous cached history into
// a refetched one. A Pending record is still awaiting confirmation and a
// Failed record stays visible for retry; the session never accepted either,
// so a wholesale overwrite would silently drop them.
func mergeLocal(fresh, cached []model.MessageRecord) []model.MessageRecord {
	seen := make(map[string]struct{}, len(fresh))
	for _, rec := range fresh {
		seen[rec.ID] = struct{}{}
	}

	merged := fresh
	carried := false
	for _, rec := range cached {
		if rec.State != model.StatePending && rec.State != model.StateFailed {
			continue
		}
		if _, ok := seen[rec.ID]; ok {
			continue
		}
		merged = append(merged, rec)
		carried = true
	}
	if carried {
		sort.SliceStable(merged, func(i, j int) bool {
			return merged[i].Timestamp < merged[j].Timestamp
		})
	}
	return merged
}

// ChatDetails returns the expanded view of one chat. Not cached: it is a
// single-row read, and participant counts go stale in ways a TTL hides.
func (s *Service) ChatDetails(ctx context.Context, chatID string) (*model.ChatDetails, error) {
	details, err := s.session.ChatDetails(ctx, chatID)
	if errors.Is(err, wa.ErrNotReady) {
		return &model.ChatDetails{ID: chatID}, nil
	}
	return details, err
}

// ContactGroups returns the groups a contact participates in.
func (s *Service) ContactGroups(ctx context.Context, contactID string) ([]model.GroupSummary, error) {
	groups, err := s.session.ContactGroups(ctx, contactID)
	if errors.Is(err, wa.ErrNotReady) {
		return []model.GroupSummary{}, nil
	}
	if groups == nil && err == nil {
		groups = []model.GroupSummary{}
	}
	return groups, err
}

// Media returns a media payload. The images namespace has no freshness
// window: entries live until an explicit clear, because a downloaded
// payload never goes stale.
func (s *Service) Media(ctx context.Context, chatID, messageID string) (*model.MediaRef, error) {
	key := chatID + "/" + messageID
	if ref, ok := cache.Lookup[*model.MediaRef](s.cache, cache.Images, key); ok {
		return ref, nil
	}

	ref, err := s.session.DownloadMedia(ctx, chatID, messageID)
	if err != nil {
		return nil, fmt.Errorf("download media %s: %w", key, err)
	}

	s.cache.Set(cache.Images, key, ref)
	return ref, nil
}

// WarmChats refreshes the chat list unconditionally. Called when the
// session reports ready so the first client read is a hit.
func (s *Service) WarmChats(ctx context.Context) []model.ChatSummary {
	chats, err := s.session.GetChats(ctx)
	if err != nil {
		s.logger.Warn("chat warmup failed", zap.Error(err))
		return []model.ChatSummary{}
	}
	ranked := ranking.Sort(chats)
	s.cache.Set(cache.Chats, listKey, ranked)
	return ranked
}
