package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v3"
	"pgregory.net/rapid"

	"habit-quest/internal/config"
)

func newContext(chat *tele.Chat, sender *tele.User) tele.Context {
	return (&tele.Bot{}).NewContext(tele.Update{
		Message: &tele.Message{Chat: chat, Sender: sender, Text: "/me"},
	})
}

func passThrough(called *bool) tele.HandlerFunc {
	return func(tele.Context) error {
		*called = true
		return nil
	}
}

func TestIsAdminProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		adminIDs := rapid.SliceOfN(rapid.Int64Range(1, 1_000_000_000), 1, 10).Draw(t, "adminIDs")
		userID := rapid.Int64Range(1, 1_000_000_000).Draw(t, "userID")
		cfg := &config.Config{Admin: config.AdminConfig{IDs: adminIDs}}

		want := false
		for _, id := range adminIDs {
			if id == userID {
				want = true
			}
		}
		if got := cfg.IsAdmin(userID); got != want {
			t.Fatalf("IsAdmin(%d) = %v with admins %v", userID, got, adminIDs)
		}
		known := adminIDs[rapid.IntRange(0, len(adminIDs)-1).Draw(t, "index")]
		if !cfg.IsAdmin(known) {
			t.Fatalf("admin %d not recognized", known)
		}
	})
}

func TestIsChatAllowedProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		chats := rapid.SliceOfN(rapid.Int64Range(-1_000_000_000, -1), 0, 10).Draw(t, "chats")
		chatID := rapid.Int64Range(-1_000_000_000, -1).Draw(t, "chatID")
		cfg := &config.Config{Whitelist: config.WhitelistConfig{Chats: chats}}

		want := len(chats) == 0
		for _, id := range chats {
			if id == chatID {
				want = true
			}
		}
		if got := cfg.IsChatAllowed(chatID); got != want {
			t.Fatalf("IsChatAllowed(%d) = %v with whitelist %v", chatID, got, chats)
		}
	})
}

func TestWhitelistMiddleware(t *testing.T) {
	cfg := &config.Config{Whitelist: config.WhitelistConfig{Chats: []int64{-100}}}
	private := NewPrivateUsers()
	mw := WhitelistMiddleware(cfg, private)
	user := &tele.User{ID: 7, Username: "ana"}

	var called bool
	assert.NoError(t, mw(passThrough(&called))(newContext(&tele.Chat{ID: 7, Type: tele.ChatPrivate}, user)))
	assert.False(t, called, "private chat from unseen user")

	called = false
	assert.NoError(t, mw(passThrough(&called))(newContext(&tele.Chat{ID: -200, Type: tele.ChatGroup}, user)))
	assert.False(t, called, "group outside whitelist")
	assert.False(t, private.Allowed(7))

	called = false
	assert.NoError(t, mw(passThrough(&called))(newContext(&tele.Chat{ID: -100, Type: tele.ChatGroup}, user)))
	assert.True(t, called, "whitelisted group")
	assert.True(t, private.Allowed(7))

	called = false
	assert.NoError(t, mw(passThrough(&called))(newContext(&tele.Chat{ID: 7, Type: tele.ChatPrivate}, user)))
	assert.True(t, called, "private chat after group use")
}

func TestWhitelistMiddleware_EmptyAllowsAll(t *testing.T) {
	mw := WhitelistMiddleware(&config.Config{}, NewPrivateUsers())

	var called bool
	assert.NoError(t, mw(passThrough(&called))(newContext(&tele.Chat{ID: 9, Type: tele.ChatPrivate}, &tele.User{ID: 9})))
	assert.True(t, called)
}

func TestAdminMiddleware_AllowsAdmin(t *testing.T) {
	mw := AdminMiddleware(&config.Config{Admin: config.AdminConfig{IDs: []int64{1}}})

	var called bool
	assert.NoError(t, mw(passThrough(&called))(newContext(&tele.Chat{ID: 1, Type: tele.ChatPrivate}, &tele.User{ID: 1})))
	assert.True(t, called)
}
