package dispatch

import "math/rand/v2"

// StartMessages acknowledge a submitted execution. %s is the execution id.
var StartMessages = []string{
	"I'll take it from here! Your execution ID for reference is %s",
	"Got it! Remember %s as your execution ID",
	"I'm on it! Your execution ID is %s",
	"Let me get right on that. Remember %s as your execution ID",
	"Always something with you. :) I'll take care of that. Your ID is %s",
	"I have it covered. Your execution ID is %s",
	"Let me start up the machine! Your execution ID is %s",
	"I'll throw that task in the oven and get cookin'! Your execution ID is %s",
	"Want me to take that off your hand? You got it! Don't forget your execution ID: %s",
	"River Tam will get it done with her psychic powers. Your execution ID is %s",
}

// ErrorMessages report a failed submission. %s is the failure message.
var ErrorMessages = []string{
	"I'm sorry, Dave. I'm afraid I can't do that. {~} %s",
}

const (
	// TwoFactorMessage is posted when a gated command awaits confirmation.
	TwoFactorMessage = "This action requires two-factor auth! Waiting for your confirmation."

	// TwoFactorTimeoutMessage is posted when a pending confirmation expires.
	TwoFactorTimeoutMessage = "Two-factor confirmation for `%s` timed out. Please run the command again."
)

// PhrasePicker selects response templates.
type PhrasePicker interface {
	Start() string
	Error() string
}

// RandomPhrases samples uniformly from the built-in lists.
type RandomPhrases struct{}

func (RandomPhrases) Start() string { return StartMessages[rand.IntN(len(StartMessages))] }
func (RandomPhrases) Error() string { return ErrorMessages[rand.IntN(len(ErrorMessages))] }

// FixedPhrases always returns the given templates.
type FixedPhrases struct {
	StartTemplate string
	ErrorTemplate string
}

func (f FixedPhrases) Start() string { return f.StartTemplate }
func (f FixedPhrases) Error() string { return f.ErrorTemplate }
