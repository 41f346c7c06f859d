package llm

// Failure classes. Each maps to a distinct apology so users can tell a slow
// model from a dead one.
const (
	classTimeout    = "timeout"
	classConnection = "connection"
	classMalformed  = "malformed"
)

var apologies = map[string]map[string]string{
	"english": {
		classTimeout: "Sorry, it's taking me too long to process your message. " +
			"The model might be busy or the question too complex. " +
			"Could you try a simpler question?",
		classConnection: "Sorry, I'm having trouble connecting to my brain right now.",
		classMalformed:  "Sorry, I'm having technical difficulties. Let's try again later.",
	},
	"spanish": {
		classTimeout: "Lo siento, me está tomando demasiado tiempo procesar tu mensaje. " +
			"El modelo podría estar ocupado o la consulta es demasiado compleja. " +
			"¿Podrías intentar con una pregunta más simple?",
		classConnection: "Lo siento, estoy teniendo problemas para conectarme a mi cerebro en este momento.",
		classMalformed:  "Lo siento, estoy teniendo problemas técnicos. Intentémoslo de nuevo más tarde.",
	},
}

// apology returns the message for a failure class in the active language.
func (c *Client) apology(class string) string {
	lang := c.languageFn()
	byClass, ok := apologies[lang]
	if !ok {
		byClass = apologies["english"]
	}
	if msg, ok := byClass[class]; ok {
		return msg
	}
	return byClass[classMalformed]
}
