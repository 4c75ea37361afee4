package notify

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_Render(t *testing.T) {
	renderer, err := NewRenderer("https://popauc.example.com")
	require.NoError(t, err)

	artworkID := uuid.New()
	base := Notification{
		ArtworkID:      artworkID,
		ArtworkTitle:   "Starry Night",
		Amount:         "200",
		Currency:       "USD",
		EndTime:        time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC),
		TrackingNumber: "TRACK123",
		Token:          "tok",
	}

	for kind := range templateSources {
		t.Run(string(kind), func(t *testing.T) {
			n := base
			n.Kind = kind
			subject, body, err := renderer.Render("alice", n)
			require.NoError(t, err)
			assert.NotEmpty(t, subject)
			assert.Contains(t, body, "Hi alice")
		})
	}

	t.Run("拍賣結束通知包含得標金額", func(t *testing.T) {
		n := base
		n.Kind = KindAuctionLost
		subject, body, err := renderer.Render("bob", n)
		require.NoError(t, err)
		assert.Equal(t, `The auction for "Starry Night" has ended`, subject)
		assert.Contains(t, body, "<b>200 USD</b>")
		assert.Contains(t, body, "https://popauc.example.com/artworks/"+artworkID.String())
	})

	t.Run("驗證信包含token連結", func(t *testing.T) {
		n := base
		n.Kind = KindEmailVerification
		_, body, err := renderer.Render("bob", n)
		require.NoError(t, err)
		assert.Contains(t, body, "/auth/verify-email?token=tok")
	})

	t.Run("作品名稱會被跳脫", func(t *testing.T) {
		n := base
		n.Kind = KindBidPlaced
		n.ArtworkTitle = "<script>alert(1)</script>"
		_, body, err := renderer.Render("bob", n)
		require.NoError(t, err)
		assert.NotContains(t, body, "<script>")
	})

	t.Run("未知的通知種類", func(t *testing.T) {
		_, _, err := renderer.Render("bob", Notification{Kind: "unknown"})
		assert.ErrorContains(t, err, "Unknown notification kind")
	})
}
