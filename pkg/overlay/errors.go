package overlay

import "errors"

var (
	// ErrNoPreferences is returned by Protocol.Intercept when the
	// local member has no enabled-walker overlays; in that case no
	// similarity traffic is sent and the caller must fall through to an
	// ordinary introduction request.
	ErrNoPreferences = errors.New("no local preferences")

	// ErrUnknownCorrelationID is returned when a similarity response or
	// pong carries an id this node has no outstanding request for.
	ErrUnknownCorrelationID = errors.New("invalid response identifier")

	// ErrWrongPongSender is returned when a pong arrives from a candidate
	// that was never part of the ping request it claims to answer.
	ErrWrongPongSender = errors.New("did not send ping to this candidate")

	// ErrTimelineRejected is returned when the framework's timeline check
	// refuses a message before protocol processing begins.
	ErrTimelineRejected = errors.New("rejected by timeline")

	// ErrIDSpaceExhausted is returned by the request cache on the
	// vanishingly unlikely event that no free 16-bit id remains in a
	// family after the retry budget is spent.
	ErrIDSpaceExhausted = errors.New("request-cache id space exhausted")
)
