package progress

// Sampler thins a progress stream for line-oriented output. It lets through
// the first event of each stage or phase, every event that enters a new
// percent bucket, and every terminal event.
type Sampler struct {
	step       float64
	lastKey    string
	lastBucket int
}

// NewSampler returns a sampler with buckets step percent wide. Non-positive
// steps fall back to 10.
func NewSampler(step float64) *Sampler {
	if step <= 0 {
		step = 10
	}
	return &Sampler{step: step, lastBucket: -1}
}

// Allow reports whether ev should be shown. A nil sampler allows everything.
func (s *Sampler) Allow(ev Event) bool {
	if s == nil || ev.Stage.Terminal() {
		return true
	}
	allow := false
	if key := string(ev.Stage) + "/" + ev.Phase; key != s.lastKey {
		s.lastKey = key
		s.lastBucket = -1
		allow = true
	}
	bucket := int(min(ev.Percent, 100) / s.step)
	if bucket > s.lastBucket {
		s.lastBucket = bucket
		allow = true
	}
	return allow
}

// Reset forgets the last stage and bucket.
func (s *Sampler) Reset() {
	if s == nil {
		return
	}
	s.lastKey = ""
	s.lastBucket = -1
}
