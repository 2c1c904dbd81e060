package trigger

import "errors"

// ErrNoTour is returned when tracking is started before a tour is loaded.
var ErrNoTour = errors.New("trigger: no tour loaded")
