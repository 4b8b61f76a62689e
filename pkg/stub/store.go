package stub

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mahaj/counseling-smoke/pkg/model"
)

var (
	ErrBadCredentials   = errors.New("invalid email or password")
	ErrUnknownRecipient = errors.New("recipient not found")
)

type account struct {
	model.User
	password string
}

// Store is an in-memory stand-in for the counseling user and message tables.
type Store struct {
	mu       sync.Mutex
	accounts map[string]*account
	byID     map[int64]*account
	messages []*model.Message
	nextID   int64
	now      func() time.Time
}

func NewStore() *Store {
	s := &Store{
		accounts: make(map[string]*account),
		byID:     make(map[int64]*account),
		nextID:   1,
		now:      time.Now,
	}
	s.AddUser(model.User{ID: 1, Username: "counselor1", Email: "counselor1@unza.zm", FirstName: "Test", LastName: "Counselor", Role: model.RoleCounselor, Active: true}, "11111111")
	s.AddUser(model.User{ID: 2, Username: "client1", Email: "client1@unza.zm", FirstName: "Test", LastName: "Client", Role: model.RoleClient, Active: true}, "22222222")
	return s
}

// AddUser registers a user who can log in by email or username.
func (s *Store) AddUser(user model.User, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := &account{User: user, password: password}
	s.byID[user.ID] = a
	s.accounts[strings.ToLower(user.Email)] = a
	if user.Username != "" {
		s.accounts[strings.ToLower(user.Username)] = a
	}
}

func (s *Store) Authenticate(identifier, password string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[strings.ToLower(strings.TrimSpace(identifier))]
	if !ok || a.password != password || !a.Active {
		return nil, ErrBadCredentials
	}
	user := a.User
	return &user, nil
}

func (s *Store) User(id int64) (*model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	user := a.User
	return &user, true
}

func (s *Store) Send(senderID int64, req model.MessageRequest) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[req.RecipientID]; !ok {
		return nil, ErrUnknownRecipient
	}

	msg := &model.Message{
		ID:          s.nextID,
		SenderID:    senderID,
		RecipientID: req.RecipientID,
		Subject:     req.Subject,
		Content:     req.Content,
		SentAt:      s.now().UTC(),
		IsDelivered: true,
	}
	s.nextID++
	s.messages = append(s.messages, msg)

	out := *msg
	return &out, nil
}

func (s *Store) UnreadCount(userID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, m := range s.messages {
		if m.RecipientID == userID && !m.IsRead {
			count++
		}
	}
	return count
}

// MarkAllRead marks every message addressed to userID as read and returns
// how many changed.
func (s *Store) MarkAllRead(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range s.messages {
		if m.RecipientID == userID && !m.IsRead {
			m.IsRead = true
			n++
		}
	}
	return n
}

// Conversations lists one entry per partner, most recent first.
func (s *Store) Conversations(userID int64) []model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	byPartner := make(map[int64]*model.Conversation)
	for _, m := range s.messages {
		var partner int64
		switch userID {
		case m.SenderID:
			partner = m.RecipientID
		case m.RecipientID:
			partner = m.SenderID
		default:
			continue
		}

		c, ok := byPartner[partner]
		if !ok {
			c = &model.Conversation{PartnerID: partner}
			if a, ok := s.byID[partner]; ok {
				c.PartnerEmail = a.Email
				c.PartnerType = a.Role
			}
			byPartner[partner] = c
		}
		if !m.SentAt.Before(c.LastMessageTime) {
			c.LastMessageContent = m.Content
			c.LastMessageTime = m.SentAt
		}
		if m.RecipientID == userID && !m.IsRead {
			c.UnreadCount++
		}
	}

	conversations := make([]model.Conversation, 0, len(byPartner))
	for _, c := range byPartner {
		conversations = append(conversations, *c)
	}
	sort.Slice(conversations, func(i, j int) bool {
		if conversations[i].LastMessageTime.Equal(conversations[j].LastMessageTime) {
			return conversations[i].PartnerID < conversations[j].PartnerID
		}
		return conversations[i].LastMessageTime.After(conversations[j].LastMessageTime)
	})
	return conversations
}
