package grid

import "errors"

var (
	ErrRowNotFound     = errors.New("row not found")
	ErrDateOutsideWeek = errors.New("date outside displayed week")
	ErrDayHidden       = errors.New("day hidden by weekend setting")
	ErrUnknownField    = errors.New("unknown row field")
	ErrClosed          = errors.New("grid closed")
)
