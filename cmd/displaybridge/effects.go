package main

import (
	"log/slog"
	"time"
)

// effectEnv bundles the collaborators commands are executed against.
type effectEnv struct {
	sender DisplaySender
	source StateRequester
	idle   *idleTimer
}

// runEffect executes a single reducer-emitted Command (side effect) and emits
// an observation Event via onEvent when there is something to report.
//
// Design rules:
// - This function is allowed to perform I/O.
// - It must never call Reduce() directly; it only emits Events to be reduced by the daemon loop.
// - Display sends are fire-and-forget: a failure is logged at debug level and reported, never retried.
func runEffect(env effectEnv, cmd Command, logger *slog.Logger, onEvent func(Event)) {
	if onEvent == nil {
		onEvent = func(Event) {}
	}

	now := time.Now()

	switch c := cmd.(type) {
	case CmdSendDisplay:
		if env.sender == nil {
			onEvent(DisplaySendFailed{Message: c.Message, Err: errNoSender{}, At: now})
			return
		}
		payload, err := EncodeDisplayMessage(c.Message)
		if err != nil {
			logger.Debug("display message dropped", "error", err, "message", c.Message.String())
			onEvent(DisplaySendFailed{Message: c.Message, Err: err, At: now})
			return
		}
		if err := env.sender.Send(payload); err != nil {
			logger.Debug("display send failed", "error", err, "bmp_number", c.Message.BmpNumber, "brightness", c.Message.Brightness)
			onEvent(DisplaySendFailed{Message: c.Message, Err: err, At: now})
			return
		}
		logger.Debug("display updated", "bmp_number", c.Message.BmpNumber, "brightness", c.Message.Brightness, "reason", c.Reason)

	case CmdArmIdle:
		if env.idle != nil {
			env.idle.Arm(c.Gen, c.After)
		}

	case CmdRequestState:
		if env.source == nil {
			return
		}
		// Best-effort: the reply, if any, arrives as a regular pushState.
		if err := env.source.RequestState(); err != nil {
			logger.Warn("getState request failed", "source", env.source.Name(), "error", err)
		}

	case CmdPublishSnapshot:
		if c.Reply == nil {
			logger.Warn("display snapshot requested with nil reply channel")
			return
		}
		// Never block the daemon on a slow requester.
		select {
		case c.Reply <- c.Snapshot:
		default:
			logger.Warn("display snapshot reply channel not ready; dropping snapshot")
		}

	default:
		logger.Warn("unknown command type", "command", cmd.String())
	}
}

// errNoSender indicates the daemon was asked to send without a DisplaySender.
type errNoSender struct{}

func (errNoSender) Error() string { return "no display sender" }
