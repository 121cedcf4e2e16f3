package backendtest

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/mahaj/taskchat/pkg/model"
	"github.com/mahaj/taskchat/pkg/snowflake"
)

// Fixed-width UTC so createdAt strings sort lexically.
const isoLayout = "2006-01-02T15:04:05.000Z"

// store keeps messages in arrival order, like the messages table of the
// real backend but in memory.
type store struct {
	mu       sync.Mutex
	ids      *snowflake.Node
	messages []model.Message
}

func newStore(ids *snowflake.Node) *store {
	return &store{ids: ids}
}

func (s *store) add(sender string, route model.Route, content string) model.Message {
	return s.put(model.Message{
		SenderID: model.ID(sender),
		Route:    route,
		Content:  content,
	})
}

// put fills in id and createdAt when missing and appends m.
func (s *store) put(m model.Message) model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = model.ID(strconv.FormatInt(s.ids.Generate(), 10))
	}
	if m.CreatedAt == "" {
		m.CreatedAt = time.Now().UTC().Format(isoLayout)
	}
	s.messages = append(s.messages, m)
	return m
}

func between(m model.Message, a, b string) bool {
	rid, ok := m.Route.RecipientID()
	if !ok {
		return false
	}
	s := m.SenderID.String()
	return (s == a && rid == b) || (s == b && rid == a)
}

// direct returns the thread between me and other, newest first.
func (s *store) direct(me, other string) []model.Message {
	return s.newestFirst(func(m model.Message) bool { return between(m, me, other) })
}

func (s *store) project(projectID string) []model.Message {
	return s.newestFirst(func(m model.Message) bool {
		pid, ok := m.Route.ProjectID()
		return ok && pid == projectID
	})
}

func (s *store) newestFirst(keep func(model.Message) bool) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Message
	for i := len(s.messages) - 1; i >= 0; i-- {
		if keep(s.messages[i]) {
			out = append(out, s.messages[i])
		}
	}
	return out
}

// markRead flags everything other sent to me as read.
func (s *store) markRead(me, other string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.messages {
		m := &s.messages[i]
		rid, ok := m.Route.RecipientID()
		if ok && rid == me && m.SenderID.String() == other && !m.IsRead {
			m.IsRead = true
			n++
		}
	}
	return n
}

func (s *store) unread(me string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if rid, ok := m.Route.RecipientID(); ok && rid == me && !m.IsRead {
			n++
		}
	}
	return n
}

// conversations summarizes every direct thread of me and every project in
// projects that has traffic, most recent first.
func (s *store) conversations(me string, projects map[string]bool, user func(string) model.UserSummary) []model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	byKey := make(map[string]*model.Conversation)
	for _, m := range s.messages {
		var key string
		var conv model.Conversation
		if pid, ok := m.Route.ProjectID(); ok {
			if !projects[pid] && m.SenderID.String() != me {
				continue
			}
			key = "p:" + pid
			conv = model.Conversation{Kind: model.KindProject, Project: &model.ProjectSummary{ID: model.ID(pid)}}
		} else {
			rid, _ := m.Route.RecipientID()
			var partner string
			switch me {
			case m.SenderID.String():
				partner = rid
			case rid:
				partner = m.SenderID.String()
			default:
				continue
			}
			key = "d:" + partner
			p := user(partner)
			conv = model.Conversation{Kind: model.KindDirect, Partner: &p}
		}

		c, ok := byKey[key]
		if !ok {
			c = &conv
			byKey[key] = c
		}
		c.LastMessage = &model.LastMessage{
			ID:        m.ID,
			Content:   m.Content,
			SenderID:  m.SenderID,
			CreatedAt: m.CreatedAt,
			IsRead:    m.IsRead,
		}
		if rid, ok := m.Route.RecipientID(); ok && rid == me && !m.IsRead {
			c.UnreadCount++
		}
	}

	out := make([]model.Conversation, 0, len(byKey))
	for _, c := range byKey {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessage.CreatedAt > out[j].LastMessage.CreatedAt
	})
	return out
}
