package canvasstore

import "time"

// nowFunc is overridable in tests that need deterministic timestamps.
var nowFunc = time.Now
