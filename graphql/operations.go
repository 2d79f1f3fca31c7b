package graphql

// Operation names double as the dispatch key on the dev server.
const (
	OpGetChats             = "GetChats"
	OpGetChatWithMessages  = "GetChatWithMessages"
	OpGetMessages          = "GetMessages"
	OpCreateChat           = "CreateChat"
	OpUpdateChatTitle      = "UpdateChatTitle"
	OpDeleteChat           = "DeleteChat"
	OpInsertMessage        = "InsertMessage"
	OpInsertBotMessage     = "InsertBotMessage"
	OpSendMessageToBot     = "SendMessageToBot"
	OpMessagesSubscription = "MessagesSubscription"
	OpChatsSubscription    = "ChatsSubscription"
)

const chatFields = `
      id
      title
      created_at
      updated_at
      messages_aggregate {
        aggregate {
          count
        }
      }`

const messageFields = `
      id
      chat_id
      content
      is_bot
      created_at
      user_id`

var Documents = map[string]string{
	OpGetChats: `query GetChats {
    chats(order_by: { updated_at: desc }) {` + chatFields + `
    }
  }`,

	OpGetChatWithMessages: `query GetChatWithMessages($chatId: uuid!) {
    chats_by_pk(id: $chatId) {` + chatFields + `
      messages(order_by: { created_at: asc }) {` + messageFields + `
      }
    }
  }`,

	OpGetMessages: `query GetMessages($chatId: uuid!) {
    messages(where: { chat_id: { _eq: $chatId } }, order_by: { created_at: asc }) {` + messageFields + `
    }
  }`,

	OpCreateChat: `mutation CreateChat($title: String = "New Chat") {
    insert_chats_one(object: { title: $title }) {` + chatFields + `
    }
  }`,

	OpUpdateChatTitle: `mutation UpdateChatTitle($chatId: uuid!, $title: String!) {
    update_chats_by_pk(pk_columns: { id: $chatId }, _set: { title: $title }) {` + chatFields + `
    }
  }`,

	OpDeleteChat: `mutation DeleteChat($chatId: uuid!) {
    delete_chats_by_pk(id: $chatId) {
      id
    }
  }`,

	OpInsertMessage: `mutation InsertMessage($chatId: uuid!, $content: String!) {
    insert_messages_one(object: { chat_id: $chatId, content: $content, is_bot: false }) {` + messageFields + `
    }
  }`,

	OpInsertBotMessage: `mutation InsertBotMessage($chatId: uuid!, $content: String!) {
    insert_messages_one(object: { chat_id: $chatId, content: $content, is_bot: true, user_id: null }) {` + messageFields + `
    }
  }`,

	OpSendMessageToBot: `mutation SendMessageToBot($chatId: uuid!, $message: String!) {
    sendMessage(chatId: $chatId, message: $message) {
      success
      message
      botResponse
    }
  }`,

	OpMessagesSubscription: `subscription MessagesSubscription($chatId: uuid!) {
    messages(where: { chat_id: { _eq: $chatId } }, order_by: { created_at: asc }) {` + messageFields + `
    }
  }`,

	OpChatsSubscription: `subscription ChatsSubscription {
    chats(order_by: { updated_at: desc }) {` + chatFields + `
    }
  }`,
}

// NewRequest builds a request for one of the documents above.
func NewRequest(op string, vars map[string]any) Request {
	return Request{
		OperationName: op,
		Query:         Documents[op],
		Variables:     vars,
	}
}
