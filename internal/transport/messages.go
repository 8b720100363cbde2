package transport

// Credentials carries what the server accepts in the auth handshake. Either
// field may be empty; the server validates whichever is present.
type Credentials struct {
	Token    string
	InitData string
}

type authMessage struct {
	Type     string `json:"type"`
	Token    string `json:"token,omitempty"`
	InitData string `json:"initData,omitempty"`
}

type pingMessage struct {
	Type string `json:"type"`
}

// ChatMessage is the outbound lobby chat message.
type ChatMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewChatMessage(message string) ChatMessage {
	return ChatMessage{Type: "chat-message", Message: message}
}

// BetMessage announces a bet over the socket.
type BetMessage struct {
	Type string  `json:"type"`
	Bet  float64 `json:"bet"`
}

func NewBetMessage(amount float64) BetMessage {
	return BetMessage{Type: "bet", Bet: amount}
}

// CashoutMessage announces a cashout over the socket.
type CashoutMessage struct {
	Type      string  `json:"type"`
	BetAmount float64 `json:"betAmount"`
}

func NewCashoutMessage(betAmount float64) CashoutMessage {
	return CashoutMessage{Type: "cashout", BetAmount: betAmount}
}
