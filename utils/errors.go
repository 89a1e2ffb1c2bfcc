package utils

import "errors"

type PermError string

func (e PermError) Error() string {
	return string(e)
}

func (e PermError) IsPermanent() bool {
	return true
}

// IsPermanent reports whether err carries a PermError anywhere in its chain,
// meaning retrying cannot help.
func IsPermanent(err error) bool {
	var p PermError
	return errors.As(err, &p)
}
