package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"daraja-mcp/internal/metrics"
	"daraja-mcp/internal/model"
)

const (
	// DefaultLimit applies when a caller asks for a non-positive count.
	DefaultLimit = 10
	// MaxLimit caps a single listing request.
	MaxLimit = 50
	// DefaultMaxSize bounds the store when no size is configured.
	DefaultMaxSize = 100
)

// NotificationStore holds received payment notifications in memory, newest
// first, bounded at maxSize with the oldest entries evicted on overflow.
// Contents live only as long as the process. Repeated callbacks for the
// same checkout request are kept as separate records: the gateway may
// retry delivery, and collapsing retries would hide that from operators.
type NotificationStore struct {
	mu            sync.RWMutex
	notifications []model.PaymentNotification
	maxSize       int
}

// NewNotificationStore creates a store bounded at maxSize records
func NewNotificationStore(maxSize int) *NotificationStore {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &NotificationStore{
		notifications: make([]model.PaymentNotification, 0, maxSize),
		maxSize:       maxSize,
	}
}

// Append records a notification as the newest entry, stamping its ID and
// received-at time, and returns the stored copy.
func (s *NotificationStore) Append(n model.PaymentNotification) model.PaymentNotification {
	s.mu.Lock()
	defer s.mu.Unlock()

	n.ID = uuid.NewString()
	n.ReceivedAt = time.Now()

	s.notifications = append([]model.PaymentNotification{n}, s.notifications...)
	if len(s.notifications) > s.maxSize {
		s.notifications = s.notifications[:s.maxSize]
	}

	s.updateGauges()
	return n
}

// Recent returns up to limit notifications, newest first. Non-positive
// limits fall back to DefaultLimit; anything above MaxLimit is clamped.
func (s *NotificationStore) Recent(limit int) []model.PaymentNotification {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit > len(s.notifications) {
		limit = len(s.notifications)
	}

	out := make([]model.PaymentNotification, limit)
	copy(out, s.notifications[:limit])
	return out
}

// Unread returns all notifications not yet marked read, newest first.
func (s *NotificationStore) Unread() []model.PaymentNotification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.PaymentNotification, 0)
	for i := range s.notifications {
		if !s.notifications[i].Read {
			out = append(out, s.notifications[i])
		}
	}
	return out
}

// ByCheckoutID returns the newest notification for the checkout request ID
func (s *NotificationStore) ByCheckoutID(checkoutRequestID string) (model.PaymentNotification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.notifications {
		if s.notifications[i].CheckoutRequestID == checkoutRequestID {
			return s.notifications[i], true
		}
	}
	return model.PaymentNotification{}, false
}

// ByReceipt returns the newest notification carrying the M-PESA receipt number
func (s *NotificationStore) ByReceipt(receipt string) (model.PaymentNotification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.notifications {
		if s.notifications[i].MpesaReceiptNumber == receipt {
			return s.notifications[i], true
		}
	}
	return model.PaymentNotification{}, false
}

// MarkRead flags the newest notification for the checkout request ID as
// read. It reports false, changing nothing, when no such notification exists.
func (s *NotificationStore) MarkRead(checkoutRequestID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notifications {
		if s.notifications[i].CheckoutRequestID == checkoutRequestID {
			s.notifications[i].Read = true
			s.updateGauges()
			return true
		}
	}
	return false
}

// Len returns the number of stored notifications
func (s *NotificationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notifications)
}

// UnreadCount returns the number of unread notifications
func (s *NotificationStore) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unreadLocked()
}

// Summary aggregates stored, unread and read counts
func (s *NotificationStore) Summary() model.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	unread := s.unreadLocked()
	return model.Summary{
		Total:  len(s.notifications),
		Unread: unread,
		Read:   len(s.notifications) - unread,
	}
}

// unreadLocked must be called with the lock held.
func (s *NotificationStore) unreadLocked() int {
	unread := 0
	for i := range s.notifications {
		if !s.notifications[i].Read {
			unread++
		}
	}
	return unread
}

// updateGauges must be called with the write lock held.
func (s *NotificationStore) updateGauges() {
	metrics.NotificationsStored.Set(float64(len(s.notifications)))
	metrics.NotificationsUnread.Set(float64(s.unreadLocked()))
}
