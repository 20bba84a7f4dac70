// Package host describes the remote machine packages are synced to.
package host

import (
	stderrors "errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/rileyhilliard/flatpak-sync/internal/errors"
)

// DefaultPort is the SSH port used when none is configured.
const DefaultPort uint16 = 22

// Target identifies one remote endpoint. It is a value type and never
// mutated after construction.
type Target struct {
	Username string `json:"username" validate:"required,ssh_user"`
	Host     string `json:"host" validate:"required,max=253,ssh_host"`
	Port     uint16 `json:"port" validate:"required"`
}

// NewTarget builds a Target, defaulting the port to 22.
func NewTarget(username, hostname string, port uint16) Target {
	if port == 0 {
		port = DefaultPort
	}
	return Target{
		Username: strings.TrimSpace(username),
		Host:     strings.TrimSpace(hostname),
		Port:     port,
	}
}

// Address returns the host:port string for dialing.
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(int(t.Port)))
}

// Destination returns user@host, the form ssh and ssh-copy-id expect.
func (t Target) Destination() string {
	return t.Username + "@" + t.Host
}

func (t Target) String() string {
	return fmt.Sprintf("%s@%s", t.Username, t.Address())
}

// Validate checks the target is usable before any provisioning or network I/O.
func (t Target) Validate() error {
	v, trans := targetValidator()
	if err := v.Struct(t); err != nil {
		var fieldErrs validator.ValidationErrors
		if stderrors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fe.Translate(trans))
			}
			return errors.New(errors.ErrConfig,
				"Remote target is invalid: "+strings.Join(msgs, "; "),
				"Pass --username and --remote-host, e.g. flatpak-sync -u alice -r desk.local")
		}
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Remote target is invalid",
			"Pass --username and --remote-host")
	}
	return nil
}

var sshUserPattern = regexp.MustCompile(`^[A-Za-z0-9._][A-Za-z0-9._-]*$`)

// sshHostPattern accepts DNS names and ~/.ssh/config aliases, which may
// contain underscores. A leading dash would be read by ssh as an option.
var sshHostPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9._-]*$`)

func isSSHHost(s string) bool {
	return net.ParseIP(s) != nil || sshHostPattern.MatchString(s)
}

var (
	validatorOnce sync.Once
	validate      *validator.Validate
	translator    ut.Translator
)

// targetValidator lazily builds a validator with English messages and the
// ssh_user and ssh_host rules registered.
func targetValidator() (*validator.Validate, ut.Translator) {
	validatorOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("ssh_user", func(fl validator.FieldLevel) bool {
			return sshUserPattern.MatchString(fl.Field().String())
		})
		_ = validate.RegisterValidation("ssh_host", func(fl validator.FieldLevel) bool {
			return isSSHHost(fl.Field().String())
		})

		english := en.New()
		uni := ut.New(english, english)
		translator, _ = uni.GetTranslator("en")
		_ = en_translations.RegisterDefaultTranslations(validate, translator)

		registerTranslation(validate, translator, "ssh_user", "{0} is not a valid SSH user name")
		registerTranslation(validate, translator, "ssh_host", "{0} must be a hostname, ssh_config alias or IP address")
	})
	return validate, translator
}

func registerTranslation(v *validator.Validate, trans ut.Translator, tag, text string) {
	_ = v.RegisterTranslation(tag, trans, func(ut ut.Translator) error {
		return ut.Add(tag, text, true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		msg, err := ut.T(tag, fe.Field())
		if err != nil {
			return fe.Error()
		}
		return msg
	})
}
