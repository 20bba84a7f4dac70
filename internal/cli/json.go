package cli

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"strings"

	"github.com/rileyhilliard/flatpak-sync/internal/errors"
	"github.com/rileyhilliard/flatpak-sync/internal/keys"
	"github.com/rileyhilliard/flatpak-sync/internal/session"
	"github.com/rileyhilliard/flatpak-sync/pkg/sshutil"
)

// Machine mode flag - when true, outputs JSON and suppresses human-friendly decorations
var machineMode bool

// MachineMode returns true if machine-readable output is enabled
func MachineMode() bool {
	return machineMode
}

// JSONEnvelope wraps command output in a consistent structure for machine parsing.
// All --json output should use this envelope.
type JSONEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *JSONError  `json:"error,omitempty"`
}

// JSONError provides structured error information for machine parsing.
type JSONError struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Suggestion string      `json:"suggestion,omitempty"`
	Details    interface{} `json:"details,omitempty"`
}

// Error codes for machine-readable output.
const (
	ErrCodeConfigNotFound    = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid     = "CONFIG_INVALID"
	ErrCodeListFailed        = "LIST_FAILED"
	ErrCodeKeyGeneration     = "KEY_GENERATION_FAILED"
	ErrCodeKeyInstall        = "KEY_INSTALL_FAILED"
	ErrCodeKeyDirectory      = "KEY_DIRECTORY_FAILED"
	ErrCodeProvisionFailed   = "PROVISION_FAILED"
	ErrCodeLockHeld          = "LOCK_HELD"
	ErrCodeSSHAuthFailed     = "SSH_AUTH_FAILED"
	ErrCodeSSHHostKey        = "SSH_HOST_KEY"
	ErrCodeSSHConnectionFail = "SSH_CONNECTION_FAILED"
	ErrCodeNoCredential      = "NO_CREDENTIAL"
	ErrCodeInstallFailed     = "INSTALL_FAILED"
	ErrCodeCommandFailed     = "COMMAND_FAILED"
	ErrCodeUnknown           = "UNKNOWN"
)

// WriteJSONSuccess writes a successful response with data to the writer.
func WriteJSONSuccess(w io.Writer, data interface{}) error {
	return writeJSONEnvelope(w, JSONEnvelope{
		Success: true,
		Data:    data,
	})
}

// WriteJSONFromError converts a Go error to a JSON error response.
func WriteJSONFromError(w io.Writer, err error) error {
	return writeJSONEnvelope(w, JSONEnvelope{
		Success: false,
		Error:   ErrorToJSON(err),
	})
}

// writeJSONEnvelope writes the envelope with consistent formatting.
func writeJSONEnvelope(w io.Writer, env JSONEnvelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

// ErrorToJSON converts a Go error to a JSONError with appropriate code mapping.
func ErrorToJSON(err error) *JSONError {
	if err == nil {
		return nil
	}

	var structured *errors.Error
	if !stderrors.As(err, &structured) {
		return &JSONError{
			Code:    ErrCodeUnknown,
			Message: err.Error(),
		}
	}

	jsonErr := &JSONError{
		Code:       mapErrorCode(structured),
		Message:    structured.Message,
		Suggestion: structured.Suggestion,
	}
	if structured.Cause != nil {
		jsonErr.Details = map[string]interface{}{"cause": structured.Cause.Error()}
	}
	return jsonErr
}

// mapErrorCode maps internal error codes, refined by the underlying cause,
// to machine-readable codes.
func mapErrorCode(e *errors.Error) string {
	switch e.Code {
	case errors.ErrConfig:
		msgLower := strings.ToLower(e.Message)
		if strings.Contains(msgLower, "not found") {
			return ErrCodeConfigNotFound
		}
		return ErrCodeConfigInvalid
	case errors.ErrList:
		return ErrCodeListFailed
	case errors.ErrLock:
		return ErrCodeLockHeld
	case errors.ErrExec:
		return ErrCodeCommandFailed
	case errors.ErrProvision:
		var provErr *keys.ProvisionError
		if stderrors.As(e, &provErr) {
			switch provErr.Kind {
			case keys.KindKeyGeneration:
				return ErrCodeKeyGeneration
			case keys.KindKeyInstall:
				return ErrCodeKeyInstall
			case keys.KindDirectory:
				return ErrCodeKeyDirectory
			case keys.KindLock:
				return ErrCodeLockHeld
			case keys.KindTarget:
				return ErrCodeConfigInvalid
			}
		}
		return ErrCodeProvisionFailed
	case errors.ErrConnect, errors.ErrSSH:
		return connectCode(e)
	}
	return ErrCodeUnknown
}

func connectCode(err error) string {
	if stderrors.Is(err, session.ErrNoCredential) {
		return ErrCodeNoCredential
	}
	var connErr *session.ConnectError
	if stderrors.As(err, &connErr) {
		switch connErr.Stage {
		case sshutil.StageAuth:
			return ErrCodeSSHAuthFailed
		case sshutil.StageHostKey:
			return ErrCodeSSHHostKey
		}
	}
	return ErrCodeSSHConnectionFail
}
