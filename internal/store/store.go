// Package store holds process-wide client state: identity, the current chat
// pointer, the notification list, and property interaction lists.
//
// Every mutation is a small named operation so that calls from the chat
// manager, the notification channel and the local API can interleave freely.
// Identity, credentials, the current chat pointer and the property lists are
// written through to a Persister; notifications are memory only and are
// re-fetched from the backend on start.
package store

import (
	"encoding/json"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/estate-assistant/internal/model"
	"github.com/capitalize-ai/estate-assistant/pkg/logger"
)

// Durable keys. The names are shared with other clients reading the same state.
const (
	KeyCurrentChatID   = "currentChatId"
	KeyAuthToken       = "authToken"
	KeyRefreshToken    = "refreshToken"
	KeyUserMode        = "userMode"
	KeyIdentity        = "identity"
	KeyAuthenticated   = "isAuthenticated"
	KeySavedProperties = "savedProperties"
	KeyRecentlyViewed  = "recentlyViewed"
)

// RecentlyViewedLimit caps the recently viewed MRU list.
const RecentlyViewedLimit = 10

var durableKeys = []string{
	KeyCurrentChatID,
	KeyAuthToken,
	KeyRefreshToken,
	KeyUserMode,
	KeyIdentity,
	KeyAuthenticated,
	KeySavedProperties,
	KeyRecentlyViewed,
}

// Store is the shared state container.
type Store struct {
	persist Persister
	logger  *logger.Logger

	mu             sync.RWMutex
	identity       *model.Identity
	authenticated  bool
	credentials    model.Credentials
	userMode       model.UserMode
	userModeSet    bool
	currentChatID  string
	notifications  []model.Notification
	savedIDs       []string
	recentlyViewed []string
}

// New creates an empty store backed by p.
func New(p Persister, log *logger.Logger) *Store {
	return &Store{
		persist:  p,
		logger:   log.Named("store"),
		userMode: model.UserModeBuyer,
	}
}

// Load restores the durable subset of state.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	read := func(key string) string {
		if err != nil {
			return ""
		}
		var v string
		v, _, err = s.persist.Get(key)
		return v
	}

	chatID := read(KeyCurrentChatID)
	authToken := read(KeyAuthToken)
	refreshToken := read(KeyRefreshToken)
	userMode := read(KeyUserMode)
	identity := read(KeyIdentity)
	authenticated := read(KeyAuthenticated)
	saved := read(KeySavedProperties)
	recent := read(KeyRecentlyViewed)
	if err != nil {
		return err
	}

	s.currentChatID = chatID
	s.credentials = model.Credentials{AuthToken: authToken, RefreshToken: refreshToken}
	if m := model.UserMode(userMode); m.Valid() {
		s.userMode = m
		s.userModeSet = true
	}
	s.authenticated, _ = strconv.ParseBool(authenticated)

	s.identity = nil
	if identity != "" {
		var id model.Identity
		if err := json.Unmarshal([]byte(identity), &id); err != nil {
			s.logger.Warn("discarding unreadable identity", zap.Error(err))
		} else {
			s.identity = &id
		}
	}

	s.savedIDs = dedupe(decodeIDs(s.logger, KeySavedProperties, saved), 0)
	s.recentlyViewed = dedupe(decodeIDs(s.logger, KeyRecentlyViewed, recent), RecentlyViewedLimit)

	return nil
}

// SetIdentity replaces the identity; nil clears it.
func (s *Store) SetIdentity(id *model.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == nil {
		s.identity = nil
		s.remove(KeyIdentity)
		return
	}
	cp := *id
	s.identity = &cp
	s.saveJSON(KeyIdentity, cp)
}

// Identity returns a copy of the identity, or nil.
func (s *Store) Identity() *model.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	cp := *s.identity
	return &cp
}

// SetAuthenticated replaces the authentication flag.
func (s *Store) SetAuthenticated(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = v
	s.save(KeyAuthenticated, strconv.FormatBool(v))
}

// Authenticated reports the authentication flag.
func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// AuthenticatedIdentity returns the identity only when the device is authenticated.
func (s *Store) AuthenticatedIdentity() (*model.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.authenticated || s.identity == nil || s.identity.ID == "" {
		return nil, false
	}
	cp := *s.identity
	return &cp, true
}

// SetCredentials replaces both tokens.
func (s *Store) SetCredentials(c model.Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials = c
	s.save(KeyAuthToken, c.AuthToken)
	s.save(KeyRefreshToken, c.RefreshToken)
}

// Credentials returns the stored tokens.
func (s *Store) Credentials() model.Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credentials
}

// AuthToken returns the bearer token for backend calls.
func (s *Store) AuthToken() string {
	return s.Credentials().AuthToken
}

// SetUserMode replaces the marketplace role.
func (s *Store) SetUserMode(m model.UserMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userMode = m
	s.userModeSet = true
	s.save(KeyUserMode, string(m))
}

// UserModeChosen reports whether the role was set explicitly or restored,
// rather than being the buyer default.
func (s *Store) UserModeChosen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userModeSet
}

// UserMode returns the marketplace role.
func (s *Store) UserMode() model.UserMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userMode
}

// SetCurrentChatID replaces the current chat pointer; an empty id clears it.
func (s *Store) SetCurrentChatID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentChatID = id
	if id == "" {
		s.remove(KeyCurrentChatID)
		return
	}
	s.save(KeyCurrentChatID, id)
}

// CurrentChatID returns the current chat pointer.
func (s *Store) CurrentChatID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentChatID
}

// Logout clears identity, credentials and every durable key together.
func (s *Store) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.identity = nil
	s.authenticated = false
	s.credentials = model.Credentials{}
	s.userMode = model.UserModeBuyer
	s.userModeSet = false
	s.currentChatID = ""
	s.notifications = nil
	s.savedIDs = nil
	s.recentlyViewed = nil

	if err := s.persist.Delete(durableKeys...); err != nil {
		s.logger.Error("failed to clear durable keys", zap.Error(err))
	}
}

// AddNotification prepends n. An existing entry with the same id is replaced.
func (s *Store) AddNotification(n model.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]model.Notification, 0, len(s.notifications)+1)
	list = append(list, n)
	for _, existing := range s.notifications {
		if existing.ID != n.ID {
			list = append(list, existing)
		}
	}
	s.notifications = list
}

// SetNotifications replaces the whole list with a fresh backend copy.
func (s *Store) SetNotifications(list []model.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append([]model.Notification(nil), list...)
}

// MarkRead sets the read flag. Unknown or already read ids are a no-op.
// It reports whether anything changed.
func (s *Store) MarkRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			if s.notifications[i].Read {
				return false
			}
			s.notifications[i].Read = true
			return true
		}
	}
	return false
}

// MarkAllRead flags every notification as read.
func (s *Store) MarkAllRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		s.notifications[i].Read = true
	}
}

// RemoveNotification deletes by id; it reports whether an entry was removed.
func (s *Store) RemoveNotification(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications = append(s.notifications[:i:i], s.notifications[i+1:]...)
			return true
		}
	}
	return false
}

// Notification looks up one notification by id.
func (s *Store) Notification(id string) (model.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.notifications {
		if n.ID == id {
			return n, true
		}
	}
	return model.Notification{}, false
}

// Notifications returns a copy of the list, newest first.
func (s *Store) Notifications() []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Notification(nil), s.notifications...)
}

// UnreadCount returns the number of unread notifications.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, item := range s.notifications {
		if !item.Read {
			n++
		}
	}
	return n
}

// AddRecentlyViewed moves propertyID to the front of the MRU list, capped at RecentlyViewedLimit.
func (s *Store) AddRecentlyViewed(propertyID string) {
	if propertyID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]string, 0, RecentlyViewedLimit)
	list = append(list, propertyID)
	for _, id := range s.recentlyViewed {
		if len(list) == RecentlyViewedLimit {
			break
		}
		if id != propertyID {
			list = append(list, id)
		}
	}
	s.recentlyViewed = list
	s.saveJSON(KeyRecentlyViewed, list)
}

// RecentlyViewed returns the MRU list, most recent first.
func (s *Store) RecentlyViewed() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.recentlyViewed...)
}

// SaveProperty adds propertyID to the saved list if absent.
func (s *Store) SaveProperty(propertyID string) {
	if propertyID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.savedIDs {
		if id == propertyID {
			return
		}
	}
	s.savedIDs = append([]string{propertyID}, s.savedIDs...)
	s.saveJSON(KeySavedProperties, s.savedIDs)
}

// UnsaveProperty removes propertyID from the saved list.
func (s *Store) UnsaveProperty(propertyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range s.savedIDs {
		if id == propertyID {
			s.savedIDs = append(s.savedIDs[:i:i], s.savedIDs[i+1:]...)
			s.saveJSON(KeySavedProperties, s.savedIDs)
			return
		}
	}
}

// IsSaved reports whether propertyID is saved.
func (s *Store) IsSaved(propertyID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.savedIDs {
		if id == propertyID {
			return true
		}
	}
	return false
}

// SavedProperties returns the saved list, most recently saved first.
func (s *Store) SavedProperties() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.savedIDs...)
}

// save and friends must be called with s.mu held. Persistence failures are
// logged; the in-memory state stays authoritative for this process.
func (s *Store) save(key, value string) {
	if err := s.persist.Set(key, value); err != nil {
		s.logger.Error("failed to persist key", zap.String("key", key), zap.Error(err))
	}
}

func (s *Store) saveJSON(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode key", zap.String("key", key), zap.Error(err))
		return
	}
	s.save(key, string(data))
}

func (s *Store) remove(key string) {
	if err := s.persist.Delete(key); err != nil {
		s.logger.Error("failed to delete key", zap.String("key", key), zap.Error(err))
	}
}

func decodeIDs(log *logger.Logger, key, raw string) []string {
	if raw == "" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		log.Warn("discarding unreadable list", zap.String("key", key), zap.Error(err))
		return nil
	}
	return ids
}

// dedupe keeps the first occurrence of each id, dropping empty ids, and caps
// the result at limit when limit > 0.
func dedupe(ids []string, limit int) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
