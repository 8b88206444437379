package config

import "errors"

var errInvalidConfig = errors.New("config: malformed JSON document")
