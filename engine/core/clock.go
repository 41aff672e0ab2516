package core

import "time"

// Clock measures session time in seconds. The zero value is stopped.
type Clock struct {
	now       func() time.Time
	startTime time.Time
	lastTick  time.Time
	elapsed   float64
	running   bool
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Updates the provided clock. Should be called just before checking elapsed time.
// Has no effect on non-started clocks.
func (c *Clock) Update() {
	if c.running {
		c.elapsed = c.now().Sub(c.startTime).Seconds()
	}
}

// Starts the provided clock. Resets elapsed time.
func (c *Clock) Start() {
	if c.now == nil {
		c.now = time.Now
	}
	c.startTime = c.now()
	c.lastTick = c.startTime
	c.elapsed = 0
	c.running = true
}

// Stops the provided clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	c.running = false
}

// Elapsed returns the seconds between Start and the last Update.
func (c *Clock) Elapsed() float64 {
	return c.elapsed
}

// Tick returns the seconds since the previous Tick (or Start) and updates
// the elapsed time.
func (c *Clock) Tick() float64 {
	if !c.running {
		return 0
	}
	t := c.now()
	delta := t.Sub(c.lastTick).Seconds()
	c.lastTick = t
	c.elapsed = t.Sub(c.startTime).Seconds()
	return delta
}
