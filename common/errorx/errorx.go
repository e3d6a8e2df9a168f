package errorx

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("the record already exists")
)

// context carries structured key/value detail attached to an error.
type context map[string]interface{}

func Ctx() context {
	return make(map[string]interface{})
}

func (ctx context) Set(key string, value interface{}) context {
	ctx[key] = value
	return ctx
}

// CustomError is the standard error struct of this project. The prefix
// groups errors by subsystem, the code identifies the exact failure.
type CustomError struct {
	Prefix  string  `json:"prefix"`
	Code    int     `json:"code"`
	Context context `json:"context,omitempty"`
	err     error
}

func (err CustomError) Error() string {
	msg := err.Prefix + "-" + fmt.Sprintf("%d", err.Code)
	if len(err.Context) > 0 {
		var auxParts []string
		for key, value := range err.Context {
			auxParts = append(auxParts, fmt.Sprintf("%s:%v", key, value))
		}
		msg += " [" + strings.Join(auxParts, ", ") + "]"
	}
	if err.err != nil {
		msg += ": " + err.err.Error()
	}
	return msg
}

func (err CustomError) Unwrap() error {
	return err.err
}

// Is matches on prefix and code so wrapped instances compare equal to
// their bare sentinel.
func (err CustomError) Is(target error) bool {
	var ce CustomError
	if !errors.As(target, &ce) {
		return false
	}
	return ce.Prefix == err.Prefix && ce.Code == err.Code
}
