package protocol

import "encoding/json"

// envelope peeks the "type" discriminator without committing to a concrete
// struct, the same one-field-then-dispatch shape the Kalshi WebSocket client
// uses for its own message envelope.
type envelope struct {
	Type string `json:"type"`
}

// RelayFrame is either a Command or a ControlMessage, whichever the "type"
// discriminator selects. Exactly one of Command/Control is non-nil on a
// successful decode.
type RelayFrame struct {
	Command *Command
	Control *ControlMessage
}

// DecodeRelayFrame dispatches a raw relay WebSocket frame to Command or
// ControlMessage. Unknown types return ErrUnknownVariant; the caller is
// expected to log and ignore rather than treat this as fatal (spec: "Unknown
// variants are logged and ignored").
func DecodeRelayFrame(raw []byte) (RelayFrame, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return RelayFrame{}, err
	}

	switch CommandType(env.Type) {
	case CommandTrade, CommandCancel, CommandCancelAll, CommandPause, CommandResume:
		var cmd Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return RelayFrame{}, err
		}
		return RelayFrame{Command: &cmd}, nil
	}

	switch ControlType(env.Type) {
	case ControlPairingConfirmed, ControlPairingRevoked:
		var ctrl ControlMessage
		if err := json.Unmarshal(raw, &ctrl); err != nil {
			return RelayFrame{}, err
		}
		return RelayFrame{Control: &ctrl}, nil
	}

	return RelayFrame{}, ErrUnknownVariant{Type: env.Type}
}

// DecodeSignal decodes a raw signal-stream frame. It returns ok=false
// (never an error) when the object lacks the id/signal_type fields that mark
// it as a signal rather than some other message on the same stream; such
// frames are dropped silently, not logged as errors.
func DecodeSignal(raw []byte) (sig Signal, ok bool, err error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return Signal{}, false, err
	}
	if !IsSignal(generic) {
		return Signal{}, false, nil
	}
	if err := json.Unmarshal(raw, &sig); err != nil {
		return Signal{}, false, err
	}
	return sig, true, nil
}
