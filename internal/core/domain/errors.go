package domain

import "errors"

var (
	ErrBidTooLow     = errors.New("bid does not exceed current price")
	ErrInvalidAmount = errors.New("bid amount must be a positive integer")
	ErrEmptyMessage  = errors.New("chat text is empty")
	ErrBanned        = errors.New("identity is banned")
)
