package userio

import "github.com/pkg/errors"

var maskAny = errors.WithStack
