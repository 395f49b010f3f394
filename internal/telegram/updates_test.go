package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChatIdentifiers(t *testing.T) {
	chat := &Chat{ID: -1005, Type: ChatTypeSupergroup{SupergroupID: 5}}
	assert.Equal(t, []int64{-1005, 5}, ChatIdentifiers(chat))

	assert.Equal(t, []int64{9}, ChatIdentifiers(&Chat{ID: 9, Type: ChatTypePrivate{}}))
	assert.Nil(t, ChatIdentifiers(nil))
}

func TestVisitIDs_NestedFullInfo(t *testing.T) {
	var ids []int64
	u := &UpdateSupergroupFullInfo{
		SupergroupID: 5,
		FullInfo:     &SupergroupFullInfo{LinkedChatID: -1009},
	}
	u.VisitIDs(func(id int64) { ids = append(ids, id) })
	assert.Equal(t, []int64{5, -1009}, ids)
}
