// README: Registers the custom binding tags with gin's validator.
package http

import (
	"errors"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"giftwave/internal/modules/validation"
)

var (
	validatorsOnce sync.Once
	validatorsErr  error
)

func registerValidators() error {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			validatorsErr = errors.New("gin validator is not go-playground/validator")
			return
		}
		validatorsErr = validation.RegisterRules(v)
	})
	return validatorsErr
}
