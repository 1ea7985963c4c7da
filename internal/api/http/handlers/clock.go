package handlers

import "time"

// Clock supplies the request time handed to services.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}
