package telegram

// Update is a push notification delivered on the client connection.
type Update interface {
	// UpdateType is the notification tag, used in dedup signatures and logs.
	UpdateType() string
	// VisitIDs calls visit for every entity identifier the payload
	// references: chats, groups and users, including nested objects.
	VisitIDs(visit func(id int64))
}

// UpdateNewChat announces a chat the client learned about.
type UpdateNewChat struct {
	Chat *Chat
}

// UpdateSupergroup carries a changed group profile.
type UpdateSupergroup struct {
	Supergroup *Supergroup
}

// UpdateSupergroupFullInfo carries a changed group extended profile.
type UpdateSupergroupFullInfo struct {
	SupergroupID int64
	FullInfo     *SupergroupFullInfo
}

// UpdateChatAvailableReactions reports a reaction policy change.
type UpdateChatAvailableReactions struct {
	ChatID             int64
	AvailableReactions AvailableReactions
}

// UpdateMessageContent reports edited content, including finished
// transcriptions.
type UpdateMessageContent struct {
	ChatID    int64
	MessageID int64
	Content   MessageContent
}

// UpdateNewMessage reports a newly posted message.
type UpdateNewMessage struct {
	Message *Message
}

// UpdateUser reports a changed user.
type UpdateUser struct {
	UserID int64
}

// UpdateOption reports a changed client option.
type UpdateOption struct {
	Name  string
	Value string
}

// UpdateUnsupported wraps notifications the client does not model.
type UpdateUnsupported struct {
	Type string
}

func (*UpdateNewChat) UpdateType() string                { return "updateNewChat" }
func (*UpdateSupergroup) UpdateType() string             { return "updateSupergroup" }
func (*UpdateSupergroupFullInfo) UpdateType() string     { return "updateSupergroupFullInfo" }
func (*UpdateChatAvailableReactions) UpdateType() string { return "updateChatAvailableReactions" }
func (*UpdateMessageContent) UpdateType() string         { return "updateMessageContent" }
func (*UpdateNewMessage) UpdateType() string             { return "updateNewMessage" }
func (*UpdateUser) UpdateType() string                   { return "updateUser" }
func (*UpdateOption) UpdateType() string                 { return "updateOption" }
func (u *UpdateUnsupported) UpdateType() string          { return u.Type }

func (u *UpdateNewChat) VisitIDs(visit func(int64)) {
	visitChat(u.Chat, visit)
}

func (u *UpdateSupergroup) VisitIDs(visit func(int64)) {
	if u.Supergroup != nil {
		visit(u.Supergroup.ID)
	}
}

func (u *UpdateSupergroupFullInfo) VisitIDs(visit func(int64)) {
	visit(u.SupergroupID)
	if u.FullInfo != nil {
		if u.FullInfo.LinkedChatID != 0 {
			visit(u.FullInfo.LinkedChatID)
		}
		if u.FullInfo.DirectMessagesChatID != 0 {
			visit(u.FullInfo.DirectMessagesChatID)
		}
	}
}

func (u *UpdateChatAvailableReactions) VisitIDs(visit func(int64)) {
	visit(u.ChatID)
}

func (u *UpdateMessageContent) VisitIDs(visit func(int64)) {
	visit(u.ChatID)
}

func (u *UpdateNewMessage) VisitIDs(visit func(int64)) {
	if u.Message != nil {
		visit(u.Message.ChatID)
	}
}

func (u *UpdateUser) VisitIDs(visit func(int64)) {
	visit(u.UserID)
}

func (*UpdateOption) VisitIDs(func(int64))      {}
func (*UpdateUnsupported) VisitIDs(func(int64)) {}

func visitChat(c *Chat, visit func(int64)) {
	if c == nil {
		return
	}
	visit(c.ID)
	switch t := c.Type.(type) {
	case ChatTypePrivate:
		visit(t.UserID)
	case ChatTypeBasicGroup:
		visit(t.BasicGroupID)
	case ChatTypeSupergroup:
		visit(t.SupergroupID)
	case ChatTypeSecret:
		visit(t.SecretChatID)
		visit(t.UserID)
	}
}

// ChatIdentifiers lists the ids that belong to a chat: the chat id plus the
// peer id its type wraps.
func ChatIdentifiers(c *Chat) []int64 {
	var ids []int64
	visitChat(c, func(id int64) {
		if id != 0 {
			ids = append(ids, id)
		}
	})
	return ids
}
