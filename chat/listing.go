package chat

import (
	"context"

	"github.com/parleyhq/parley/core"
)

// ChatsByOwner returns one page of an owner's chats ordered by most recent
// update, plus the unpaginated total. A non-empty search term filters on
// title and description.
func (m *Manager) ChatsByOwner(ctx context.Context, owner string, page, pageSize int, search string) ([]core.ChatSummary, int, error) {
	return m.store.ListChatsByOwner(ctx, owner, page, pageSize, search)
}

// ChatMessages returns one page of a chat's messages in chronological order
// within the page, enriched with agent display fields from the catalog, plus
// the unpaginated total. Pages are taken from the newest end.
func (m *Manager) ChatMessages(ctx context.Context, chatID string, page, pageSize int) ([]core.MessageView, int, error) {
	messages, total, err := m.store.ListMessagesByChat(ctx, chatID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	views := make([]core.MessageView, 0, len(messages))
	for i := range messages {
		view := messages[i].View()
		if view.AgentID != "" {
			if agent, ok := m.catalog.ByID(view.AgentID); ok {
				view.AgentName = agent.Name
				view.AgentAvatar = agent.Avatar
			}
		}
		views = append(views, view)
	}
	return views, total, nil
}
