package detector

import "errors"

// ErrNotArmed is returned by Observe when the detector has never been reset.
// It means the token source fed a token without announcing a run first.
var ErrNotArmed = errors.New("detector observed a token before the first reset")
