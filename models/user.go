package models

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// BotReply is the result of the bot-invocation action.
type BotReply struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	BotResponse string `json:"botResponse"`
}
