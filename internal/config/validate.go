package config

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/rileyhilliard/flatpak-sync/internal/errors"
)

var (
	validatorOnce sync.Once
	validate      *validator.Validate
	translator    ut.Translator
)

// configValidator builds a validator that reports fields by their YAML key.
func configValidator() (*validator.Validate, ut.Translator) {
	validatorOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		english := en.New()
		uni := ut.New(english, english)
		translator, _ = uni.GetTranslator("en")
		_ = en_translations.RegisterDefaultTranslations(validate, translator)
	})
	return validate, translator
}

// Validate checks the config for errors and returns a structured error
// listing every problem.
func Validate(cfg *Config) error {
	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but flatpak-sync only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Upgrade flatpak-sync or lower the version field")
	}

	v, trans := configValidator()
	if err := v.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !stderrors.As(err, &fieldErrs) {
			return errors.WrapWithCode(err, errors.ErrConfig, "Config is invalid", "")
		}
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, namespaceKey(fe.Namespace())+": "+fe.Translate(trans))
		}
		return errors.New(errors.ErrConfig,
			"Config is invalid: "+strings.Join(msgs, "; "),
			"Fix the listed keys in your config file or FLATPAK_SYNC_* environment")
	}

	if cfg.Lock.Stale < cfg.Lock.Timeout {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("lock.stale (%s) is shorter than lock.timeout (%s)", cfg.Lock.Stale, cfg.Lock.Timeout),
			"A waiting run would break a lock that is still in use. Raise lock.stale.")
	}
	return nil
}

// namespaceKey turns "Config.lock.stale" into "lock.stale".
func namespaceKey(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
