package bot

import (
	"context"
	"io"
	"testing"

	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHandler() (*Handler, *[]string) {
	var sent []string
	log := logrus.New()
	log.SetOutput(io.Discard)
	h := &Handler{
		send: func(_ context.Context, _ int64, text string) error {
			sent = append(sent, text)
			return nil
		},
		log: log,
	}
	return h, &sent
}

func msgUpdate(chatID int64, text string) *models.Update {
	return &models.Update{
		Message: &models.Message{
			Text: text,
			Chat: models.Chat{ID: chatID},
		},
	}
}

func TestDefaultHandler_NudgesTowardStart(t *testing.T) {
	h, sent := testHandler()
	h.defaultHandler(context.Background(), nil, msgUpdate(5, "hello?"))
	require.Len(t, *sent, 1)
	assert.Contains(t, (*sent)[0], "/start")
}

func TestDefaultHandler_IgnoresNonMessageUpdates(t *testing.T) {
	h, sent := testHandler()
	h.defaultHandler(context.Background(), nil, &models.Update{})
	assert.Empty(t, *sent)
}

func TestStartHandler_ListsCommands(t *testing.T) {
	h, sent := testHandler()
	h.startHandler(context.Background(), nil, msgUpdate(5, "/start"))
	require.Len(t, *sent, 1)
	assert.Contains(t, (*sent)[0], "/add")
	assert.Contains(t, (*sent)[0], "/check")
}
