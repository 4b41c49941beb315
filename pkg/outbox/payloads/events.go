package payloads

import "github.com/google/uuid"

// EmailSubjectWelcome and EmailTextWelcome are the fixed welcome copy. The
// mail subsystem renders them verbatim, so the strings stay exactly as the
// legacy system emitted them.
const (
	EmailSubjectWelcome = "Cadastro Realizado com Sucesso"
	EmailTextWelcome    = ", seja bem vindo(a) \nAgradecemos seu cadastro, aproveite agora todos os recursos da nossa plataforma!"
)

// UserCreatedEvent tells the mail subsystem to send the welcome email.
// All fields are required on the wire.
type UserCreatedEvent struct {
	UserID  uuid.UUID `json:"userId"`
	EmailTo string    `json:"emailTo"`
	Subject string    `json:"subject"`
	Text    string    `json:"text"`
}

// NewUserCreatedEvent builds the welcome email payload for a freshly
// persisted user.
func NewUserCreatedEvent(userID uuid.UUID, name, email string) UserCreatedEvent {
	return UserCreatedEvent{
		UserID:  userID,
		EmailTo: email,
		Subject: EmailSubjectWelcome,
		Text:    name + EmailTextWelcome,
	}
}
