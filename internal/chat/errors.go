package chat

import "errors"

var (
	// ErrProtocolViolation means the backend broke the generation contract,
	// e.g. answered without an x-message-id header. The turn cannot recover.
	ErrProtocolViolation = errors.New("generation protocol violation")

	// ErrMalformedResponse means the finished stream did not decode into a
	// generation response.
	ErrMalformedResponse = errors.New("malformed generation response")

	// ErrSessionBusy is returned by Submit while a previous cycle is loading.
	ErrSessionBusy = errors.New("generation already in progress")

	// ErrHistoryUnavailable means the conversation history could not be loaded.
	ErrHistoryUnavailable = errors.New("could not load conversation")

	// ErrNothingToExpand is returned by TellMeMore when the last turn is not
	// a finished, unexpanded answer.
	ErrNothingToExpand = errors.New("no answer to expand")

	// ErrEmptyMessage is returned when the submitted content is blank.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrAlreadyStarted is returned when Run is called a second time.
	ErrAlreadyStarted = errors.New("conversation already started")

	// ErrClosed is returned when the conversation loop is no longer running.
	ErrClosed = errors.New("conversation closed")
)
