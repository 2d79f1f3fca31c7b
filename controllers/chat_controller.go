package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chatclient/bot"
	"chatclient/graphql"
	"chatclient/middlewares"
	"chatclient/models"
	"chatclient/store"
)

// ChatController answers the GraphQL operations the client issues. Requests
// are dispatched on operationName; the documents themselves are not parsed.
type ChatController struct {
	Store    *store.Notifying
	Bot      *bot.Pipeline
	Accounts *Accounts
	Role     string
	Log      *zap.Logger
}

func (cc *ChatController) HandleGraphQL(c *gin.Context) {
	var req graphql.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err))
		return
	}
	c.Set(middlewares.OperationKey, req.OperationName)

	data, err := cc.dispatch(c.Request.Context(), middlewares.CurrentUser(c), req)
	if err != nil {
		cc.Log.Info("operation failed", zap.String("operation", req.OperationName), zap.Error(err))
		c.JSON(http.StatusOK, errorResponse(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func (cc *ChatController) dispatch(ctx context.Context, user models.User, req graphql.Request) (gin.H, error) {
	chatID := req.StringVar("chatId")

	switch req.OperationName {
	case graphql.OpGetChats:
		chats, err := cc.chatRows(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		return gin.H{"chats": chats}, nil

	case graphql.OpGetChatWithMessages:
		conv, err := cc.Store.GetChat(ctx, user.ID, chatID)
		if errors.Is(err, store.ErrNotFound) {
			return gin.H{"chats_by_pk": nil}, nil
		}
		if err != nil {
			return nil, err
		}
		msgs, err := cc.messages(ctx, user.ID, chatID)
		if err != nil {
			return nil, err
		}
		row := graphql.NewChatRow(conv)
		row.Messages = msgs
		return gin.H{"chats_by_pk": row}, nil

	case graphql.OpGetMessages:
		msgs, err := cc.messages(ctx, user.ID, chatID)
		if err != nil {
			return nil, err
		}
		return gin.H{"messages": msgs}, nil

	case graphql.OpCreateChat:
		title := req.StringVar("title")
		conv, err := cc.Store.CreateChat(ctx, user.ID, title)
		if err != nil {
			return nil, err
		}
		return gin.H{"insert_chats_one": graphql.NewChatRow(conv)}, nil

	case graphql.OpUpdateChatTitle:
		conv, err := cc.Store.UpdateChatTitle(ctx, user.ID, chatID, req.StringVar("title"))
		if errors.Is(err, store.ErrNotFound) {
			return gin.H{"update_chats_by_pk": nil}, nil
		}
		if err != nil {
			return nil, err
		}
		return gin.H{"update_chats_by_pk": graphql.NewChatRow(conv)}, nil

	case graphql.OpDeleteChat:
		err := cc.Store.DeleteChat(ctx, user.ID, chatID)
		if errors.Is(err, store.ErrNotFound) {
			return gin.H{"delete_chats_by_pk": nil}, nil
		}
		if err != nil {
			return nil, err
		}
		return gin.H{"delete_chats_by_pk": gin.H{"id": chatID}}, nil

	case graphql.OpInsertMessage, graphql.OpInsertBotMessage:
		fromBot := req.OperationName == graphql.OpInsertBotMessage
		msg, err := cc.Store.InsertMessage(ctx, user.ID, chatID, req.StringVar("content"), fromBot)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("foreign key violation: chat %q does not exist", chatID)
		}
		if err != nil {
			return nil, err
		}
		return gin.H{"insert_messages_one": msg}, nil

	case graphql.OpSendMessageToBot:
		reply, err := cc.Bot.Respond(ctx, user.ID, chatID, req.StringVar("message"))
		if err != nil {
			return nil, err
		}
		return gin.H{"sendMessage": reply}, nil
	}
	return nil, fmt.Errorf("unknown operation %q", req.OperationName)
}

func (cc *ChatController) chatRows(ctx context.Context, userID string) ([]graphql.ChatRow, error) {
	convs, err := cc.Store.ListChats(ctx, userID)
	if err != nil {
		return nil, err
	}
	rows := make([]graphql.ChatRow, 0, len(convs))
	for _, conv := range convs {
		rows = append(rows, graphql.NewChatRow(conv))
	}
	return rows, nil
}

// messages behaves like a where-filtered query: unknown chats have no rows.
func (cc *ChatController) messages(ctx context.Context, userID, chatID string) ([]models.Message, error) {
	msgs, err := cc.Store.Messages(ctx, userID, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return []models.Message{}, nil
	}
	return msgs, err
}

func errorResponse(err error) gin.H {
	return gin.H{"errors": []graphql.ErrorEntry{{Message: err.Error()}}}
}
