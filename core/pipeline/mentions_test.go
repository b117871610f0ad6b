package pipeline

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/narrator/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackMentions(t *testing.T) {
	fileID := uuid.New()

	t.Run("Match whole words only", func(t *testing.T) {
		ann := testEntity("Ann", model.EntityTypeCharacter, 2, 0.8, 0, 0)
		text := "Anna spoke to Ann. Ann nodded while Annabel left."

		mentions, err := TrackMentions([]*model.Entity{ann}, text, fileID, nil)

		require.NoError(t, err)
		require.Len(t, mentions, 2, "Ann must not match inside Anna or Annabel")
		assert.Equal(t, strings.Index(text, "Ann."), mentions[0].StartOffset)
		assert.Equal(t, "Ann", mentions[0].MentionText)
		assert.Equal(t, "Ann", mentions[1].MentionText)
	})

	t.Run("Prefer longest alias on overlapping matches", func(t *testing.T) {
		kael := testEntity("Lord Kael", model.EntityTypeCharacter, 2, 0.8, 0, 0)
		kael.Aliases = []string{"Kael", "the lord"}
		text := "Lord Kael drew his sword. Kael charged before the lord tired."

		mentions, err := TrackMentions([]*model.Entity{kael}, text, fileID, nil)

		require.NoError(t, err)
		require.Len(t, mentions, 3, "One occurrence of Lord Kael must yield one mention")
		assert.Equal(t, "Lord Kael", mentions[0].MentionText)
		assert.True(t, mentions[0].IsDirectMention, "Canonical name matches are direct")
		assert.Equal(t, 0, mentions[0].MentionIndex)
		assert.Equal(t, "Kael", mentions[1].MentionText)
		assert.True(t, mentions[1].IsDirectMention, "Capitalized alias matches are direct")
		assert.Equal(t, 1, mentions[1].MentionIndex)
		assert.Equal(t, "the lord", mentions[2].MentionText)
		assert.False(t, mentions[2].IsDirectMention, "Lowercase alias matches are indirect")
		assert.Equal(t, 2, mentions[2].MentionIndex)
	})

	t.Run("Deduplicate identical spans from multiple aliases", func(t *testing.T) {
		sera := testEntity("Sera", model.EntityTypeCharacter, 1, 0.8, 0, 0)
		sera.Aliases = []string{"sera"}

		mentions, err := TrackMentions([]*model.Entity{sera}, "Sera waited alone.", fileID, nil)

		require.NoError(t, err)
		assert.Len(t, mentions, 1)
	})

	t.Run("Resolve line and paragraph numbers", func(t *testing.T) {
		kael := testEntity("Kael", model.EntityTypeCharacter, 3, 0.8, 0, 0)
		text := "Kael stood.\nKael waited.\n\nKael slept."

		mentions, err := TrackMentions([]*model.Entity{kael}, text, fileID, nil)

		require.NoError(t, err)
		require.Len(t, mentions, 3)
		assert.Equal(t, 1, mentions[0].LineNumber)
		assert.Equal(t, 0, mentions[0].ParagraphNumber)
		assert.Equal(t, 2, mentions[1].LineNumber)
		assert.Equal(t, 0, mentions[1].ParagraphNumber)
		assert.Equal(t, 4, mentions[2].LineNumber)
		assert.Equal(t, 1, mentions[2].ParagraphNumber)
		assert.Equal(t, "Kael waited.", mentions[1].Sentence)
	})

	t.Run("Resolve scene from offsets", func(t *testing.T) {
		kael := testEntity("Kael", model.EntityTypeCharacter, 2, 0.8, 0, 0)
		text := "Kael rode east for a day. Beyond the river Kael made camp."
		firstScene := model.Scene{ID: uuid.New(), FileID: fileID, Index: 0, StartOffset: 0, EndOffset: 26}
		secondScene := model.Scene{ID: uuid.New(), FileID: fileID, Index: 1, StartOffset: 26, EndOffset: len(text)}

		mentions, err := TrackMentions([]*model.Entity{kael}, text, fileID, []model.Scene{firstScene, secondScene})

		require.NoError(t, err)
		require.Len(t, mentions, 2)
		require.NotNil(t, mentions[0].SceneID)
		assert.Equal(t, firstScene.ID, *mentions[0].SceneID)
		require.NotNil(t, mentions[1].SceneID)
		assert.Equal(t, secondScene.ID, *mentions[1].SceneID)
	})

	t.Run("Leave scene unset outside all scenes", func(t *testing.T) {
		kael := testEntity("Kael", model.EntityTypeCharacter, 1, 0.8, 0, 0)
		scene := model.Scene{ID: uuid.New(), FileID: fileID, Index: 0, StartOffset: 50, EndOffset: 90}

		mentions, err := TrackMentions([]*model.Entity{kael}, "Kael slept.", fileID, []model.Scene{scene})

		require.NoError(t, err)
		require.Len(t, mentions, 1)
		assert.Nil(t, mentions[0].SceneID)
	})

	t.Run("Record context windows and sentence", func(t *testing.T) {
		sera := testEntity("Sera", model.EntityTypeCharacter, 1, 0.9, 0, 0)
		text := "The gates opened at dawn. Sera walked through them slowly. Nobody followed."

		mentions, err := TrackMentions([]*model.Entity{sera}, text, fileID, nil)

		require.NoError(t, err)
		require.Len(t, mentions, 1)
		mention := mentions[0]
		assert.Equal(t, "The gates opened at dawn. ", mention.ContextBefore)
		assert.Equal(t, " walked through them slowly. Nobody followed.", mention.ContextAfter)
		assert.Equal(t, "Sera walked through them slowly.", mention.Sentence)
		assert.Equal(t, 0.9, mention.Confidence, "Mention confidence inherits from the entity")
	})

	t.Run("Order mentions by position across entities", func(t *testing.T) {
		kael := testEntity("Kael", model.EntityTypeCharacter, 2, 0.8, 0, 0)
		sera := testEntity("Sera", model.EntityTypeCharacter, 1, 0.8, 0, 0)
		text := "Kael bowed. Sera laughed. Kael blushed."

		mentions, err := TrackMentions([]*model.Entity{kael, sera}, text, fileID, nil)

		require.NoError(t, err)
		require.Len(t, mentions, 3)
		assert.Equal(t, kael.ID, mentions[0].EntityID)
		assert.Equal(t, sera.ID, mentions[1].EntityID)
		assert.Equal(t, kael.ID, mentions[2].EntityID)
		assert.Equal(t, 0, mentions[0].MentionIndex)
		assert.Equal(t, 0, mentions[1].MentionIndex)
		assert.Equal(t, 1, mentions[2].MentionIndex, "Mention indices count per entity")
	})

	t.Run("Empty text returns no mentions", func(t *testing.T) {
		kael := testEntity("Kael", model.EntityTypeCharacter, 1, 0.8, 0, 0)
		mentions, err := TrackMentions([]*model.Entity{kael}, "   ", fileID, nil)

		require.NoError(t, err)
		assert.Empty(t, mentions)
	})
}
