package audit

import "errors"

var errStopWalk = errors.New("stop walk")
